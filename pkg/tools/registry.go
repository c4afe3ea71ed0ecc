package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"guildbot/pkg/platform"
)

// GuildContext contains the per-request configuration for tool creation.
// Tools created from the same context share one REST client and guild scope.
type GuildContext struct {
	Client  *platform.Client
	GuildID string
}

// ToolFactory creates a tool instance configured for a specific guild context.
type ToolFactory func(gctx GuildContext) (Tool, error)

// ToolMeta contains metadata about a tool for documentation and discovery.
type ToolMeta struct {
	Name        string
	Description string
	InputSchema InputSchema
}

// toolDescriptor contains the factory and metadata for a tool.
type toolDescriptor struct {
	meta    ToolMeta
	factory ToolFactory
}

// immutableRegistry is the global, read-only tool registry.
type immutableRegistry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]toolDescriptor
}

// Global registry instance - initialized in init().
//
//nolint:gochecknoglobals // Factory pattern requires global registry
var globalRegistry = &immutableRegistry{
	tools: make(map[string]toolDescriptor),
}

// Register adds a tool factory to the global registry.
// Panics if called after the registry is sealed.
func Register(name string, factory ToolFactory, meta *ToolMeta) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if globalRegistry.sealed {
		panic(fmt.Sprintf("tool registry sealed - cannot register tool '%s'", name))
	}

	globalRegistry.tools[name] = toolDescriptor{
		meta:    *meta,
		factory: factory,
	}
}

// Seal prevents further tool registrations.
// Called automatically when the first ToolProvider is created.
func Seal() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.sealed = true
}

// ListTools returns metadata for all registered tools, sorted by name.
func ListTools() []ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(globalRegistry.tools))
	//nolint:gocritic // rangeValCopy: Direct access is clearer than pointer dereferencing
	for _, desc := range globalRegistry.tools {
		result = append(result, desc.meta)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// AllToolNames returns the names of every registered tool, sorted.
func AllToolNames() []string {
	metas := ListTools()
	names := make([]string, len(metas))
	for i := range metas {
		names[i] = metas[i].Name
	}
	return names
}

// ToolProvider creates and manages tool instances for one request's guild
// context. Instances are created lazily and cached per provider.
type ToolProvider struct {
	gctx     GuildContext
	tools    map[string]Tool
	allowSet map[string]struct{}
	mu       sync.Mutex
}

// NewProvider creates a ToolProvider for the given guild context and allowed
// tools. Automatically seals the global registry on first use.
func NewProvider(gctx GuildContext, allowedTools []string) *ToolProvider {
	Seal() // Ensure registry is immutable

	allowSet := make(map[string]struct{}, len(allowedTools))
	for _, name := range allowedTools {
		allowSet[name] = struct{}{}
	}

	return &ToolProvider{
		gctx:     gctx,
		tools:    make(map[string]Tool),
		allowSet: allowSet,
	}
}

// Get retrieves a tool instance, creating it lazily if needed.
func (p *ToolProvider) Get(name string) (Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.allowSet[name]; !ok {
		return nil, fmt.Errorf("tool '%s' not allowed in this context", name)
	}

	if tool, ok := p.tools[name]; ok {
		return tool, nil
	}

	globalRegistry.mu.RLock()
	desc, exists := globalRegistry.tools[name]
	globalRegistry.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("tool '%s' not registered", name)
	}

	tool, err := desc.factory(p.gctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool '%s': %w", name, err)
	}

	p.tools[name] = tool
	return tool, nil
}

// Must is like Get but panics on error. Use for tools that must exist.
func (p *ToolProvider) Must(name string) Tool {
	tool, err := p.Get(name)
	if err != nil {
		panic(err)
	}
	return tool
}

// List returns metadata for all allowed tools, sorted by name.
func (p *ToolProvider) List() []ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(p.allowSet))
	for name := range p.allowSet {
		if desc, ok := globalRegistry.tools[name]; ok {
			result = append(result, desc.meta)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// PromptDocumentation concatenates the documentation of every allowed tool
// for inclusion in LLM system prompts.
func (p *ToolProvider) PromptDocumentation() string {
	metas := p.List()
	if len(metas) == 0 {
		return "No tools available"
	}

	var doc strings.Builder
	doc.WriteString("## Available Tools\n\n")
	for i := range metas {
		tool, err := p.Get(metas[i].Name)
		if err != nil {
			doc.WriteString(fmt.Sprintf("- **%s** - %s\n", metas[i].Name, metas[i].Description))
			continue
		}
		doc.WriteString(tool.PromptDocumentation())
		doc.WriteString("\n")
	}
	return doc.String()
}

// TOOL FACTORY FUNCTIONS

func createSearchRolesTool(gctx GuildContext) (Tool, error) {
	if gctx.Client == nil {
		return nil, fmt.Errorf("search_roles tool requires a platform client")
	}
	return NewSearchRolesTool(gctx.Client, gctx.GuildID), nil
}

func createSearchChannelsTool(gctx GuildContext) (Tool, error) {
	if gctx.Client == nil {
		return nil, fmt.Errorf("search_channels tool requires a platform client")
	}
	return NewSearchChannelsTool(gctx.Client, gctx.GuildID), nil
}

func createSearchMembersTool(gctx GuildContext) (Tool, error) {
	if gctx.Client == nil {
		return nil, fmt.Errorf("search_members tool requires a platform client")
	}
	return NewSearchMembersTool(gctx.Client, gctx.GuildID), nil
}

func createMemberCountTool(gctx GuildContext) (Tool, error) {
	if gctx.Client == nil {
		return nil, fmt.Errorf("member_count tool requires a platform client")
	}
	return NewMemberCountTool(gctx.Client, gctx.GuildID), nil
}

func createChannelInfoTool(gctx GuildContext) (Tool, error) {
	if gctx.Client == nil {
		return nil, fmt.Errorf("channel_info tool requires a platform client")
	}
	return NewChannelInfoTool(gctx.Client, gctx.GuildID), nil
}

// SCHEMA FUNCTIONS - Extract schemas from tool implementations

func getSearchRolesSchema() InputSchema {
	return NewSearchRolesTool(nil, "").Definition().InputSchema
}

func getSearchChannelsSchema() InputSchema {
	return NewSearchChannelsTool(nil, "").Definition().InputSchema
}

func getSearchMembersSchema() InputSchema {
	return NewSearchMembersTool(nil, "").Definition().InputSchema
}

func getMemberCountSchema() InputSchema {
	return NewMemberCountTool(nil, "").Definition().InputSchema
}

func getChannelInfoSchema() InputSchema {
	return NewChannelInfoTool(nil, "").Definition().InputSchema
}

// init registers all tools in the global registry using the factory pattern.
//
//nolint:gochecknoinits // Factory pattern requires init() for tool registration
func init() {
	Register(ToolSearchRoles, createSearchRolesTool, &ToolMeta{
		Name:        ToolSearchRoles,
		Description: "Search guild roles by name and inspect their properties",
		InputSchema: getSearchRolesSchema(),
	})

	Register(ToolSearchChannels, createSearchChannelsTool, &ToolMeta{
		Name:        ToolSearchChannels,
		Description: "Search guild channels and categories by name",
		InputSchema: getSearchChannelsSchema(),
	})

	Register(ToolSearchMembers, createSearchMembersTool, &ToolMeta{
		Name:        ToolSearchMembers,
		Description: "Search guild members by username or nickname prefix",
		InputSchema: getSearchMembersSchema(),
	})

	Register(ToolMemberCount, createMemberCountTool, &ToolMeta{
		Name:        ToolMemberCount,
		Description: "Count guild members, optionally filtered by join date",
		InputSchema: getMemberCountSchema(),
	})

	Register(ToolChannelInfo, createChannelInfoTool, &ToolMeta{
		Name:        ToolChannelInfo,
		Description: "Inspect a single channel by id or exact name",
		InputSchema: getChannelInfoSchema(),
	})
}
