package types

// Version is the canonical project version, shared by the CLI, the
// converter IPC contract and the completion event contract.
const Version = "1.0.0"

// Name is the human-facing name of the job.
const Name = "Database Visualization"
