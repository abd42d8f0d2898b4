package storage

import "encoding/binary"

// Key layout of the Badger keyspace.
//
//	sess/<token_hash>          session record (JSON)
//	resx/<res_id>/<token_hash> res_id -> session secondary index (empty value)
//	ns/<res_id>                namespace record (JSON)
//	coll/<name>                collection metadata (JSON)
//	doc/<name>\x00<seq>        document body, seq is big-endian uint64
const (
	prefixSession    = "sess/"
	prefixResIndex   = "resx/"
	prefixNamespace  = "ns/"
	prefixCollection = "coll/"
	prefixDocument   = "doc/"
)

func sessionKey(tokenHash string) []byte {
	return []byte(prefixSession + tokenHash)
}

func resIndexPrefix(resID string) []byte {
	return []byte(prefixResIndex + resID + "/")
}

func resIndexKey(resID, tokenHash string) []byte {
	return []byte(prefixResIndex + resID + "/" + tokenHash)
}

func namespaceKey(resID string) []byte {
	return []byte(prefixNamespace + resID)
}

func collectionKey(name string) []byte {
	return []byte(prefixCollection + name)
}

func documentPrefix(name string) []byte {
	return []byte(prefixDocument + name + "\x00")
}

func documentKey(name string, seq uint64) []byte {
	p := documentPrefix(name)
	key := make([]byte, len(p)+8)
	copy(key, p)
	binary.BigEndian.PutUint64(key[len(p):], seq)
	return key
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// TotalSize is the total disk usage in bytes.
	TotalSize uint64

	// LSMSize is the LSM tree size.
	LSMSize uint64

	// ValueLogSize is the value log size.
	ValueLogSize uint64

	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64

	// GCRuns is the number of value log files rewritten by GC.
	GCRuns uint64
}

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// Dir is the storage directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory. Used by tests.
	InMemory bool

	// GCInterval is the interval between automatic GC runs.
	// Default: 10m
	GCInterval string

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5 (run GC when 50% of data is stale)
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 256MB
	ValueLogFileSize int64

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int

	// NumLevelZeroTables is the number of Level 0 tables before compaction.
	// Default: 5
	NumLevelZeroTables int

	// NumLevelZeroTablesStall is the number of Level 0 tables that triggers write stall.
	// Default: 10
	NumLevelZeroTablesStall int

	// SyncWrites enables sync writes (fsync after each write).
	// Default: false
	SyncWrites bool
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:                     dir,
		GCInterval:              "10m",
		GCThreshold:             0.5,
		CacheSize:               64 << 20,  // 64MB
		ValueLogFileSize:        256 << 20, // 256MB
		NumMemtables:            2,
		NumLevelZeroTables:      5,
		NumLevelZeroTablesStall: 10,
		SyncWrites:              false,
	}
}
