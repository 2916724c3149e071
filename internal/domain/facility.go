package domain

// Facility is a site with one head manager and a technician roster.
type Facility struct {
	ID            string
	Name          string
	HeadManagerID string
	TechnicianIDs []string
}

// HasTechnician reports roster membership.
func (f *Facility) HasTechnician(id string) bool {
	for _, t := range f.TechnicianIDs {
		if t == id {
			return true
		}
	}
	return false
}
