package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type ConversationKind int

const (
	DirectConversation ConversationKind = iota + 1
	GroupConversation
	CommunityConversation
)

const (
	groupKeyPrefix     = "group_"
	communityKeyPrefix = "community_"
)

// ConversationKey identifies a conversation: Direct{UserA, UserB} with the two
// emails sorted, Group{GroupID} or Community{CommunityID}. The zero value is
// invalid.
type ConversationKey struct {
	Kind        ConversationKind
	UserA       string
	UserB       string
	GroupID     uint
	CommunityID uint
}

// DirectKey 生成私聊会话ID，与参数顺序无关
func DirectKey(a, b string) ConversationKey {
	ids := []string{a, b}
	sort.Strings(ids)
	return ConversationKey{Kind: DirectConversation, UserA: ids[0], UserB: ids[1]}
}

// GroupKey 生成群聊会话ID
func GroupKey(groupID uint) ConversationKey {
	return ConversationKey{Kind: GroupConversation, GroupID: groupID}
}

// CommunityKey 社区聊天室
func CommunityKey(communityID uint) ConversationKey {
	return ConversationKey{Kind: CommunityConversation, CommunityID: communityID}
}

// String renders the canonical room / conversation id.
func (k ConversationKey) String() string {
	switch k.Kind {
	case DirectConversation:
		return fmt.Sprintf("%s_%s", k.UserA, k.UserB)
	case GroupConversation:
		return groupKeyPrefix + strconv.FormatUint(uint64(k.GroupID), 10)
	case CommunityConversation:
		return communityKeyPrefix + strconv.FormatUint(uint64(k.CommunityID), 10)
	default:
		return ""
	}
}

// Counterpart returns the participant of a direct key that is not self.
func (k ConversationKey) Counterpart(self string) (string, bool) {
	if k.Kind != DirectConversation {
		return "", false
	}
	switch self {
	case k.UserA:
		return k.UserB, true
	case k.UserB:
		return k.UserA, true
	}
	return "", false
}

// ParseGroupRoom parses "group_<id>".
func ParseGroupRoom(room string) (ConversationKey, bool) {
	id, ok := parseRoomID(room, groupKeyPrefix)
	if !ok {
		return ConversationKey{}, false
	}
	return GroupKey(id), true
}

// ParseCommunityRoom parses "community_<id>".
func ParseCommunityRoom(room string) (ConversationKey, bool) {
	id, ok := parseRoomID(room, communityKeyPrefix)
	if !ok {
		return ConversationKey{}, false
	}
	return CommunityKey(id), true
}

func parseRoomID(room, prefix string) (uint, bool) {
	rest, ok := strings.CutPrefix(room, prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ParseDirectRoom resolves a direct room id from the point of view of self.
// Emails may contain underscores, so the room is split around self rather
// than on the separator.
func ParseDirectRoom(room, self string) (ConversationKey, bool) {
	if self == "" {
		return ConversationKey{}, false
	}
	var other string
	if rest, ok := strings.CutPrefix(room, self+"_"); ok {
		other = rest
	} else if rest, ok := strings.CutSuffix(room, "_"+self); ok {
		other = rest
	}
	if other == "" {
		return ConversationKey{}, false
	}
	key := DirectKey(self, other)
	if key.String() != room {
		return ConversationKey{}, false
	}
	return key, true
}
