package command

import (
	"time"

	"github.com/yndnr/keymesh-go/internal/cli/output"
	"github.com/yndnr/keymesh-go/internal/core/domain"
)

// userView renders a user profile.
type userView struct {
	*domain.User
}

func (v userView) Table(wide bool) *output.Table {
	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("id", v.ID)
	t.AddRow("username", v.Username)
	t.AddRow("email", v.Email)
	t.AddRow("active", yesNo(v.Active))
	if wide {
		t.AddRow("created", output.Time(v.CreatedAt))
		t.AddRow("last login", output.Time(v.LastLoginAt))
	}
	return t
}

// keyView is an API key with its status computed at render time.
type keyView struct {
	domain.APIKey
	Status domain.KeyStatus `json:"status"`
}

func newKeyView(k domain.APIKey, status domain.KeyStatus) keyView {
	return keyView{APIKey: k, Status: status}
}

func (v keyView) Table(wide bool) *output.Table {
	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("id", v.ID)
	t.AddRow("name", v.Name)
	t.AddRow("permissions", string(v.Permissions))
	t.AddRow("status", string(v.Status))
	t.AddRow("created", output.Time(&v.CreatedAt))
	t.AddRow("expires", expires(v.ExpiresAt))
	t.AddRow("last used", output.Time(v.LastUsedAt))
	if v.HasSecret() {
		t.AddRow("key", *v.Secret)
	}
	return t
}

// keyList renders API keys one per row.
type keyList []keyView

func (l keyList) Table(wide bool) *output.Table {
	t := &output.Table{Headers: []string{"ID", "NAME", "PERMISSIONS", "STATUS", "EXPIRES"}}
	if wide {
		t.Headers = append(t.Headers, "CREATED", "LAST USED")
	}
	for _, k := range l {
		id := k.ID
		if !wide {
			id = output.Truncate(id, 12)
		}
		row := []string{id, k.Name, string(k.Permissions), string(k.Status), expires(k.ExpiresAt)}
		if wide {
			row = append(row, output.Time(&k.CreatedAt), output.Time(k.LastUsedAt))
		}
		t.AddRow(row...)
	}
	return t
}

// statusView summarizes the local session.
type statusView struct {
	Server         string               `json:"server"`
	Status         domain.SessionStatus `json:"status"`
	User           *domain.User         `json:"user,omitempty"`
	TokenExpiresAt *time.Time           `json:"tokenExpiresAt,omitempty"`
}

func (v statusView) Table(wide bool) *output.Table {
	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("server", v.Server)
	t.AddRow("status", string(v.Status))
	if v.User != nil {
		t.AddRow("user", v.User.Username)
		t.AddRow("email", v.User.Email)
	}
	if v.TokenExpiresAt != nil {
		t.AddRow("token expires", output.Time(v.TokenExpiresAt))
	}
	return t
}

func expires(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return output.Time(t)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
