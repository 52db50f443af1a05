//go:build nodebug || !tinygo

package display

// Manager is a no-op when the panel is compiled out.
type Manager struct{}

// NewManager returns nil; the firmware treats a nil Manager as absent.
func NewManager() *Manager {
	return nil
}

// Show is a no-op.
func (m *Manager) Show(scr Screen) {}
