package rpcpool

// Version is the library's semantic version, set at release time.
const Version = "0.3.1"
