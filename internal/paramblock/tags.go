package paramblock

// Connection (DPB) tags.
const (
	DPBVersion1    byte = 1
	DPBPageSize    byte = 4
	DPBForceWrite  byte = 24
	DPBUserName    byte = 28
	DPBPassword    byte = 29
	DPBLcCtype     byte = 48
	DPBSQLRoleName byte = 60
	DPBSQLDialect  byte = 63
)

// Transaction (TPB) tags.
const (
	TPBVersion3        byte = 3
	TPBConsistency     byte = 1
	TPBConcurrency     byte = 2
	TPBWait            byte = 6
	TPBNoWait          byte = 7
	TPBRead            byte = 8
	TPBWrite           byte = 9
	TPBIgnoreLimbo     byte = 14
	TPBReadCommitted   byte = 15
	TPBAutoCommit      byte = 16
	TPBRecVersion      byte = 17
	TPBNoRecVersion    byte = 18
	TPBRestartRequests byte = 19
	TPBNoAutoUndo      byte = 20
	TPBLockTimeout     byte = 21
	TPBReadConsistency byte = 22
)

// Blob (BPB) tags.
const (
	BPBVersion1      byte = 1
	BPBType          byte = 3
	BPBTypeSegmented byte = 0
	BPBTypeStream    byte = 1
)

// Blob info items.
const (
	InfoEnd             byte = 1
	InfoTruncated       byte = 2
	InfoBlobTotalLength byte = 6
)

// tpbFlags lists the TPB tags that carry no length or value.
var tpbFlags = map[byte]bool{
	TPBConsistency:     true,
	TPBConcurrency:     true,
	TPBWait:            true,
	TPBNoWait:          true,
	TPBRead:            true,
	TPBWrite:           true,
	TPBIgnoreLimbo:     true,
	TPBReadCommitted:   true,
	TPBAutoCommit:      true,
	TPBRecVersion:      true,
	TPBNoRecVersion:    true,
	TPBRestartRequests: true,
	TPBNoAutoUndo:      true,
	TPBReadConsistency: true,
}
