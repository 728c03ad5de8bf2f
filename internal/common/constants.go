// Package common contains shared constants and sentinel errors used across
// bookfeed components.
package common

// ObjectStatusDeleted is the reserved content string that marks a logical
// object id as deleted. A transaction whose content equals this value is a
// tombstone: it removes the live record for its id and materializes nothing.
const ObjectStatusDeleted = "OBJECT_STATUS_DELETED"

// FileInfoName is the content name of a book manifest record. Segment
// records carry their own segment id ("seg-1", "seg-2", ...) as the name.
const FileInfoName = "fileinfo"

// CursorSettingKey returns the settings key under which the sync cursor for
// a group is persisted.
func CursorSettingKey(groupID string) string {
	return groupID + "_startTrx"
}

// PublishSettingKey returns the settings key under which publish progress
// for a job is persisted.
func PublishSettingKey(groupID, jobID string) string {
	return groupID + "_publish_" + jobID
}
