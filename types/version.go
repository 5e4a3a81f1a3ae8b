package types

// Version is the canonical project version.
// The CLI, the notification payloads and the journal records share it.
const Version = "0.1.0"

// ContractVersion is stamped on every published notification and journal
// record. It moves in lockstep with Version.
const ContractVersion = Version
