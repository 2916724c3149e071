package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

type directorySeed struct {
	Facilities []struct {
		ID            string   `json:"id"`
		Name          string   `json:"name"`
		HeadManagerID string   `json:"headManagerId"`
		TechnicianIDs []string `json:"technicianIds"`
	} `json:"facilities"`
	Users []struct {
		ID    string   `json:"id"`
		Name  string   `json:"name"`
		Email string   `json:"email"`
		Roles []string `json:"roles"`
	} `json:"users"`
}

// SeedDirectories upserts the facilities and users listed in a JSON file.
// Unknown role names are rejected.
func SeedDirectories(ctx context.Context, path string, facilities FacilityRepository, users UserRepository) (int, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read seed file: %w", err)
	}
	var seed directorySeed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return 0, 0, fmt.Errorf("decode seed file: %w", err)
	}

	for _, u := range seed.Users {
		roles := make([]domain.Role, 0, len(u.Roles))
		for _, name := range u.Roles {
			role, ok := domain.ParseRole(name)
			if !ok {
				return 0, 0, fmt.Errorf("user %s: unknown role %q", u.ID, name)
			}
			roles = append(roles, role)
		}
		user := &domain.User{ID: strings.TrimSpace(u.ID), Name: u.Name, Email: u.Email, Roles: domain.NewRoleSet(roles...)}
		if user.ID == "" {
			return 0, 0, fmt.Errorf("seed user without id")
		}
		if err := users.Save(ctx, user); err != nil {
			return 0, 0, fmt.Errorf("save user %s: %w", user.ID, err)
		}
	}
	for _, f := range seed.Facilities {
		facility := &domain.Facility{ID: strings.TrimSpace(f.ID), Name: f.Name, HeadManagerID: f.HeadManagerID, TechnicianIDs: f.TechnicianIDs}
		if facility.ID == "" {
			return 0, 0, fmt.Errorf("seed facility without id")
		}
		if err := facilities.Save(ctx, facility); err != nil {
			return 0, 0, fmt.Errorf("save facility %s: %w", facility.ID, err)
		}
	}
	return len(seed.Facilities), len(seed.Users), nil
}
