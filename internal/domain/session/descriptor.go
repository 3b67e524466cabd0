package session

import (
	"fmt"
	"time"

	"github.com/GriffinCanCode/SessionHost/internal/domain/catalog"
)

// Descriptor describes one configured game session.
type Descriptor struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Features    []string  `json:"features"`
	RunID       string    `json:"run_id"`
	LaunchedAt  time.Time `json:"launched_at"`
}

// LaunchText is the notification shown in the window when the session starts.
func (d Descriptor) LaunchText() string {
	return fmt.Sprintf("Game was launched: %s %d", d.Name, d.ID)
}

// ConfigSource resolves a game id to its configuration.
type ConfigSource interface {
	ConfigFor(id int) (catalog.Entry, bool)
}
