package handler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/terminus/internal/generator"
)

func InstanceIDFromInteraction(i *discordgo.InteractionCreate) string {
	var customID string

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		customID = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		customID = i.ModalSubmitData().CustomID
	default:
		return ""
	}

	return InstanceIDFromCustomID(customID)
}

func InstanceIDFromCustomID(customID string) string {
	parts := strings.SplitN(customID, ":", 2)
	if len(parts) != 2 {
		return ""
	}

	return parts[1]
}

type FlowContext struct {
	InstanceID string
	State      map[string]any
}

type Node struct {
	ID      string
	Matcher func(*discordgo.InteractionCreate) bool
	Handler func(DiscordSession, *discordgo.InteractionCreate, *FlowContext) error
	Next    []*Node
}

type Flow struct {
	ID   string
	Root *Node
}

type flowSession struct {
	flow      *Flow
	node      *Node
	ctx       *FlowContext
	startedAt time.Time
}

// DefaultFlowTTL is how long an unfinished flow keeps its state.
const DefaultFlowTTL = 15 * time.Minute

type FlowManager struct {
	flowsMu sync.RWMutex
	flows   []*Flow

	sessionsMu sync.RWMutex
	sessions   map[string]*flowSession

	idGenerator generator.Generator[string]
	ttl         time.Duration
	now         func() time.Time
}

func NewFlowManager(idGenerator generator.Generator[string]) *FlowManager {
	if idGenerator == nil {
		idGenerator = &generator.UUIDV4Generator{}
	}
	return &FlowManager{
		sessions:    make(map[string]*flowSession),
		idGenerator: idGenerator,
		ttl:         DefaultFlowTTL,
		now:         time.Now,
	}
}

// RegisterFlow adds a flow. Roots are tried in registration order.
func (fm *FlowManager) RegisterFlow(flow *Flow) {
	fm.flowsMu.Lock()
	defer fm.flowsMu.Unlock()

	for _, f := range fm.flows {
		if f.ID == flow.ID {
			panic("flow already registered")
		}
	}
	fm.flows = append(fm.flows, flow)
}

func (fm *FlowManager) Router(s DiscordSession, i *discordgo.InteractionCreate) error {
	instanceID := InstanceIDFromInteraction(i)
	if instanceID != "" {
		fm.sessionsMu.RLock()
		sess, inFlow := fm.sessions[instanceID]
		fm.sessionsMu.RUnlock()
		if inFlow && fm.now().Sub(sess.startedAt) <= fm.ttl {
			return fm.advance(s, i, sess)
		}
	}

	return fm.initializeFlow(s, i)
}

func (fm *FlowManager) finish(sess *flowSession) {
	fm.sessionsMu.Lock()
	delete(fm.sessions, sess.ctx.InstanceID)
	fm.sessionsMu.Unlock()
}

func (fm *FlowManager) advance(
	s DiscordSession,
	i *discordgo.InteractionCreate,
	sess *flowSession,
) error {
	if len(sess.node.Next) == 0 {
		fm.finish(sess)
		return nil
	}

	var nextNode *Node
	for _, n := range sess.node.Next {
		if n.Matcher(i) {
			nextNode = n
			break
		}
	}
	if nextNode == nil {
		return nil
	}

	sess.node = nextNode
	if err := runHandler(s, i, sess); err != nil {
		return err
	}

	if len(nextNode.Next) == 0 {
		fm.finish(sess)
	}
	return nil
}

func (fm *FlowManager) initializeFlow(s DiscordSession, i *discordgo.InteractionCreate) error {
	fm.flowsMu.RLock()
	var f *Flow
	for _, flow := range fm.flows {
		if flow.Root.Matcher(i) {
			f = flow
			break
		}
	}
	fm.flowsMu.RUnlock()
	if f == nil {
		return nil
	}

	instanceID, err := fm.idGenerator.Next()
	if err != nil {
		return fmt.Errorf("failed to generate instance ID: %w", err)
	}

	ctx := &FlowContext{
		InstanceID: instanceID,
		State:      make(map[string]any),
	}
	newSess := &flowSession{flow: f, node: f.Root, ctx: ctx, startedAt: fm.now()}

	// Single-node flows finish as soon as they run.
	if len(f.Root.Next) > 0 {
		fm.sessionsMu.Lock()
		fm.expireLocked()
		fm.sessions[instanceID] = newSess
		fm.sessionsMu.Unlock()
	}

	return runHandler(s, i, newSess)
}

// expireLocked drops flows nobody advanced within the TTL.
func (fm *FlowManager) expireLocked() {
	cutoff := fm.now().Add(-fm.ttl)
	for id, sess := range fm.sessions {
		if sess.startedAt.Before(cutoff) {
			delete(fm.sessions, id)
		}
	}
}

// Pending returns the number of unfinished flows.
func (fm *FlowManager) Pending() int {
	fm.sessionsMu.RLock()
	defer fm.sessionsMu.RUnlock()
	return len(fm.sessions)
}

func runHandler(s DiscordSession, i *discordgo.InteractionCreate, sess *flowSession) error {
	return sess.node.Handler(s, i, sess.ctx)
}
