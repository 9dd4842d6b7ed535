package types

import (
	"sort"
	"time"
)

type ChangeType int

const (
	ChangeAdded ChangeType = iota
	ChangeModified
	ChangeDeleted
)

var ChangeTypeTextMap = map[ChangeType]string{
	ChangeAdded:    "added",
	ChangeModified: "modified",
	ChangeDeleted:  "deleted",
}

func (c ChangeType) String() string { return ChangeTypeTextMap[c] }

func (c ChangeType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

type Change struct {
	Key      string     `json:"key"`
	OldValue string     `json:"old_value,omitempty"`
	NewValue string     `json:"new_value,omitempty"`
	Type     ChangeType `json:"type"`
}

// ChangeEvent is emitted after the notifier refreshed a namespace.
type ChangeEvent struct {
	AppID          string    `json:"app_id"`
	Cluster        string    `json:"cluster"`
	Namespace      string    `json:"namespace"`
	ReleaseKey     string    `json:"release_key"`
	NotificationID int64     `json:"notification_id"`
	Source         string    `json:"source"`
	Changes        []Change  `json:"changes"`
	At             time.Time `json:"at"`
}

// Diff lists the key-level differences between two snapshots, sorted by key. Either side may be nil.
func Diff(old, next *Snapshot) []Change {
	changes := make([]Change, 0)
	for _, k := range old.Keys() {
		ov, _ := old.Get(k)
		nv, ok := next.Get(k)
		switch {
		case !ok:
			changes = append(changes, Change{Key: k, OldValue: ov, Type: ChangeDeleted})
		case nv != ov:
			changes = append(changes, Change{Key: k, OldValue: ov, NewValue: nv, Type: ChangeModified})
		}
	}
	for _, k := range next.Keys() {
		if _, ok := old.Get(k); ok {
			continue
		}
		nv, _ := next.Get(k)
		changes = append(changes, Change{Key: k, NewValue: nv, Type: ChangeAdded})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes
}
