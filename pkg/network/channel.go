package network

import (
	"fmt"
	"sync"

	"github.com/multiformats/go-multiaddr"
	"github.com/nebulacore/streamengine/pkg/pipeline"
)

// Direction distinguishes a channel carrying tuple data from one carrying
// control events (spec.md §4.7, "Announce").
type Direction int

const (
	DataChannel Direction = iota
	EventChannel
)

// SenderRegistration is what a sender registers per channel: where it binds,
// the live connection, and the channel's stable id (spec.md §4.7,
// "Identity").
type SenderRegistration struct {
	Bind      multiaddr.Multiaddr
	Conn      Conn
	ChannelID string
}

// ReceiverRegistration is what a receiver registers per channel: the
// channel id and the downstream pipeline node newly arrived buffers are
// dispatched to.
type ReceiverRegistration struct {
	ChannelID string
	Consumer  *pipeline.Node
}

// SenderRegistry is the sender-side channel table, a direct generalization
// of the teacher's package-level backendRegistry (pkg/storage/registry.go)
// from named backend constructors to named channel registrations.
type SenderRegistry struct {
	mu   sync.RWMutex
	byID map[string]*SenderRegistration
}

func NewSenderRegistry() *SenderRegistry {
	return &SenderRegistry{byID: make(map[string]*SenderRegistration)}
}

func (r *SenderRegistry) Register(reg *SenderRegistration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[reg.ChannelID] = reg
}

func (r *SenderRegistry) Lookup(channelID string) (*SenderRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[channelID]
	return reg, ok
}

func (r *SenderRegistry) Unregister(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, channelID)
}

// ReceiverRegistry is the receiver-side partition registry spec.md §4.7's
// Ready step consults: "receiver checks a partition registry". Reader
// traffic (Lookup) is expected to dominate writer traffic (Register,
// Unregister), per spec.md §5's "Partition manager: reader-writer lock;
// readers dominate" — sync.RWMutex already gives that bias.
type ReceiverRegistry struct {
	mu   sync.RWMutex
	byID map[string]*ReceiverRegistration
}

func NewReceiverRegistry() *ReceiverRegistry {
	return &ReceiverRegistry{byID: make(map[string]*ReceiverRegistration)}
}

func (r *ReceiverRegistry) Register(reg *ReceiverRegistration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[reg.ChannelID] = reg
}

func (r *ReceiverRegistry) Lookup(channelID string) (*ReceiverRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[channelID]
	return reg, ok
}

func (r *ReceiverRegistry) Unregister(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, channelID)
}

// ParseBindAddress parses a channel's bind address, e.g.
// "/ip4/127.0.0.1/tcp/9000", using the teacher's indirect multiaddr
// dependency for a structured, protocol-agnostic address representation
// instead of a bare host:port string.
func ParseBindAddress(s string) (multiaddr.Multiaddr, error) {
	addr, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return nil, fmt.Errorf("network: invalid bind address %q: %w", s, err)
	}
	return addr, nil
}
