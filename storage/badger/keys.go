package badger

import (
	"github.com/google/uuid"
)

// Key prefixes for different data types
const (
	collectionPrefix = "colmeta"
	pointPrefix      = "colpt"
	runRecordPrefix  = "runrec"
	runEventPrefix   = "runevt"
)

// makeCollectionKey generates a key for collection metadata.
func makeCollectionKey(name string) []byte {
	return []byte(collectionPrefix + ":" + name)
}

// makePointPrefix generates the prefix shared by every point of a collection.
// Format: prefix:name:
func makePointPrefix(name string) []byte {
	return []byte(pointPrefix + ":" + name + ":")
}

// makePointKey generates a key for a point.
// Format: prefix:name:<16 raw id bytes>
// Raw id bytes make badger's key order the point ID order.
func makePointKey(name string, id uuid.UUID) []byte {
	prefix := makePointPrefix(name)
	buf := make([]byte, len(prefix)+len(id))
	offset := copy(buf, prefix)
	copy(buf[offset:], id[:])
	return buf
}

// makeRunKey generates a key for a run by ID.
func makeRunKey(id string) []byte {
	return []byte(runRecordPrefix + ":" + id)
}

// makePartialRunEventKey generates the prefix of all runs for an event.
// Format: prefix:eventID:
func makePartialRunEventKey(eventID string) []byte {
	return []byte(runEventPrefix + ":" + eventID + ":")
}

// makeRunEventKey generates a composite key for the event index.
// Format: prefix:eventID:runID
func makeRunEventKey(eventID, runID string) []byte {
	return append(makePartialRunEventKey(eventID), runID...)
}
