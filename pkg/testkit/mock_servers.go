package testkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"

	"guildbot/pkg/platform"
)

// GuildFixture is the canned guild a MockGuildServer serves.
type GuildFixture struct {
	Guild    platform.Guild
	BotUser  platform.User
	Roles    []platform.Role
	Channels []platform.Channel
	Members  []platform.Member
}

// DefaultGuildFixture returns a small guild with roles, a category with two
// text channels, and three members.
func DefaultGuildFixture() GuildFixture {
	return GuildFixture{
		Guild:   platform.Guild{ID: "guild-1", Name: "Gopher Guild", OwnerID: "user-1", MemberCount: 42},
		BotUser: platform.User{ID: "bot-1", Username: "guildbot", Bot: true},
		Roles: []platform.Role{
			{ID: "role-admin", Name: "Admin", Color: 0xE74C3C, Position: 10, Mentionable: false},
			{ID: "role-mod", Name: "Moderator", Color: 0x3498DB, Position: 5, Mentionable: true},
			{ID: "role-member", Name: "Member", Position: 1, Mentionable: false},
		},
		Channels: []platform.Channel{
			{ID: "cat-1", GuildID: "guild-1", Name: "Community", Type: platform.ChannelTypeCategory},
			{ID: "chan-general", GuildID: "guild-1", Name: "general", Topic: "Anything goes", ParentID: "cat-1", Type: platform.ChannelTypeText, Position: 1},
			{ID: "chan-help", GuildID: "guild-1", Name: "help", ParentID: "cat-1", Type: platform.ChannelTypeText, Position: 2},
		},
		Members: []platform.Member{
			{User: &platform.User{ID: "user-1", Username: "alice"}, Nick: "Ali", Roles: []string{"role-admin", "role-member"}},
			{User: &platform.User{ID: "user-2", Username: "bob"}, Roles: []string{"role-member"}},
			{User: &platform.User{ID: "user-3", Username: "carol"}, Roles: []string{"role-mod", "role-member"}},
		},
	}
}

// MockGuildServer creates an httptest server emulating the guild REST API for
// the given fixture: bot identity, guild metadata, roles, channels, member
// search and listing, and message posting. Callers own Close.
func MockGuildServer(f GuildFixture) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/users/@me", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, f.BotUser)
	})

	base := "/guilds/" + f.Guild.ID
	mux.HandleFunc(base, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, f.Guild)
	})
	mux.HandleFunc(base+"/roles", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, f.Roles)
	})
	mux.HandleFunc(base+"/channels", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, f.Channels)
	})
	mux.HandleFunc(base+"/members/search", func(w http.ResponseWriter, r *http.Request) {
		query := strings.ToLower(r.URL.Query().Get("query"))
		matches := []platform.Member{}
		for _, m := range f.Members {
			if strings.HasPrefix(strings.ToLower(m.User.Username), query) ||
				strings.HasPrefix(strings.ToLower(m.Nick), query) {
				matches = append(matches, m)
			}
		}
		writeJSON(w, clampMembers(matches, r))
	})
	mux.HandleFunc(base+"/members", func(w http.ResponseWriter, r *http.Request) {
		after := r.URL.Query().Get("after")
		members := make([]platform.Member, 0, len(f.Members))
		for _, m := range f.Members {
			if m.User.ID > after {
				members = append(members, m)
			}
		}
		sort.Slice(members, func(i, j int) bool { return members[i].User.ID < members[j].User.ID })
		writeJSON(w, clampMembers(members, r))
	})

	for _, ch := range f.Channels {
		channel := ch
		mux.HandleFunc("/channels/"+channel.ID, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, channel)
		})
		mux.HandleFunc("/channels/"+channel.ID+"/messages", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				var send platform.MessageSend
				_ = json.NewDecoder(r.Body).Decode(&send)
				writeJSON(w, platform.Message{ID: "posted-1", ChannelID: channel.ID, Content: send.Content})
				return
			}
			writeJSON(w, []platform.Message{})
		})
	}

	return httptest.NewServer(mux)
}

func clampMembers(members []platform.Member, r *http.Request) []platform.Member {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 1
	}
	if len(members) > limit {
		members = members[:limit]
	}
	return members
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
