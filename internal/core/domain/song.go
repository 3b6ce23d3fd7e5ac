package domain

import "time"

// LyricSection is one labelled block of a song's lyrics, e.g. "Verse 1".
type LyricSection struct {
	Section string `json:"section"`
	Lyrics  string `json:"lyrics"`
}

// Song is a catalog entry for a lesson piece. Attachment fields hold opaque
// URLs; the service never parses or stores the referenced files itself.
type Song struct {
	ID            string
	Title         string
	Instrument    string
	Lyrics        []LyricSection
	ChordDiagrams []string
	Documents     []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Favorites is a user's set of bookmarked song ids.
type Favorites struct {
	UserID  string
	SongIDs []string
}

// Contains reports whether the song id is already bookmarked.
func (f *Favorites) Contains(songID string) bool {
	for _, id := range f.SongIDs {
		if id == songID {
			return true
		}
	}
	return false
}
