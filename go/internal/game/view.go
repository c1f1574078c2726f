package game

import "github.com/mcdev12/quizhall/go/internal/models"

// View returns the copy of s that viewerID may see. Final bids and answers
// go to the host only; everyone else sees just their own entries. An empty
// viewerID is an anonymous observer.
func View(s *models.GameSession, viewerID string) *models.GameSession {
	v := s.Clone()
	f := v.State.Final
	if f == nil {
		return v
	}
	if p := v.Participant(viewerID); p != nil && p.Role == models.RoleHost {
		return v
	}
	f.Bids = own(f.Bids, viewerID)
	f.Answers = own(f.Answers, viewerID)
	return v
}

func own[V any](m map[string]V, viewerID string) map[string]V {
	v, ok := m[viewerID]
	if !ok {
		return nil
	}
	return map[string]V{viewerID: v}
}
