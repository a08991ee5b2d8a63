package domain

import "fmt"

type RecordingID string

// Recording identifies one remote recording session and authorizes access
// to its track streams. Supplied externally, never mutated.
type Recording struct {
	ID  RecordingID
	Key string
}

// RemoteUser is the shape returned by the recording metadata service for
// one participant of the session.
type RemoteUser struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

// DisplayName derives the track display name from the remote identity.
// The discriminator is appended only when it is non-zero, to disambiguate
// users sharing a name.
func (u RemoteUser) DisplayName() string {
	name := u.Name
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = u.ID
	}
	switch u.Discriminator {
	case "", "0", "0000":
		return name
	}
	return name + "#" + u.Discriminator
}

// TrackDescriptor describes one track of a recording. Indexes are 1-based,
// contiguous and assigned at enumeration time; descriptors are immutable
// after creation.
type TrackDescriptor struct {
	Index  int
	Name   string
	UserID string
}

// DescriptorsFromUsers assigns contiguous 1-based track indexes to the
// remote user list, in enumeration order.
func DescriptorsFromUsers(users []RemoteUser) []TrackDescriptor {
	descs := make([]TrackDescriptor, 0, len(users))
	for i, u := range users {
		descs = append(descs, TrackDescriptor{
			Index:  i + 1,
			Name:   u.DisplayName(),
			UserID: u.ID,
		})
	}
	return descs
}

func (d TrackDescriptor) String() string {
	return fmt.Sprintf("track %d (%s)", d.Index, d.Name)
}
