// Package identity mints and holds the tab identity: an opaque id created
// once per client instance, living exactly as long as the instance. It is
// never written to the shared session table itself; it is the key under
// which this instance's session record is stored.
package identity

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TabID is the opaque per-instance identifier.
type TabID string

// Provider hands out this instance's tab identity. The id is minted lazily
// on first use and is stable afterwards, except when Adopt rebinds the
// instance to another tab's identity ("use this session here").
type Provider struct {
	mu sync.Mutex
	id TabID
}

func NewProvider() *Provider {
	return &Provider{}
}

// Current returns the tab identity, minting it on first call.
func (p *Provider) Current() TabID {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id == "" {
		p.id = mint()
	}
	return p.id
}

// Adopt rebinds this instance to the given identity.
func (p *Provider) Adopt(id TabID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
}

func mint() TabID {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return TabID(fmt.Sprintf("tab_%d_%s", time.Now().UnixMilli(), suffix))
}
