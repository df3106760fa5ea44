package ingest

import (
	"errors"
	"strings"

	"github.com/illmade-knight/go-catalog/pkg/types"
	"github.com/illmade-knight/go-catalog/pkg/uploads"
)

// Storage notification attribute names, as delivered by GCS bucket
// notifications over Pub/Sub.
const (
	attrEventType = "eventType"
	attrBucketID  = "bucketId"
	attrObjectID  = "objectId"

	eventObjectFinalize = "OBJECT_FINALIZE"
)

// StorageEvent identifies one newly created object.
type StorageEvent struct {
	Bucket string
	Object string
}

// ErrNotStorageEvent marks a message that is not a well-formed object
// creation notification.
var ErrNotStorageEvent = errors.New("not a storage object event")

// ParseStorageEvent extracts the storage event from a notification message.
// The boolean reports whether the event is one the ingestor should process:
// an OBJECT_FINALIZE for an object under the uploaded/ namespace. Other
// event types and namespaces are valid notifications that are simply not
// ours to handle.
func ParseStorageEvent(msg types.ConsumedMessage) (StorageEvent, bool, error) {
	bucket := msg.Attributes[attrBucketID]
	object := msg.Attributes[attrObjectID]
	if bucket == "" || object == "" {
		return StorageEvent{}, false, ErrNotStorageEvent
	}
	event := StorageEvent{Bucket: bucket, Object: object}

	if eventType, ok := msg.Attributes[attrEventType]; ok && eventType != eventObjectFinalize {
		return event, false, nil
	}
	if !strings.HasPrefix(object, uploads.UploadPrefix) {
		return event, false, nil
	}
	return event, true, nil
}
