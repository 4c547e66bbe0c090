package messaging

import (
	"fmt"

	"github.com/relaychat/server/internal/domain"
)

// Hot-store key builders. Grounded on the key scheme in
// original_source/src/service/RedisService.cpp's getChatKey/getGroupKey/
// getGroupMembersKey/getUserGroupsKey/getUserFriendsKey helpers and the
// ONLINE_USERS_KEY/"user:<id>:offline"/"user:<id>:online" literals used
// throughout that file.

func privateStreamKey(a, b int64) string {
	lo, hi := domain.PairKey(a, b)
	return fmt.Sprintf("chat:%d:%d", lo, hi)
}

func groupMetaKey(groupID int64) string {
	return fmt.Sprintf("group:%d", groupID)
}

func groupMembersKey(groupID int64) string {
	return fmt.Sprintf("group:%d:members", groupID)
}

func groupStreamKey(groupID int64) string {
	return fmt.Sprintf("group:%d:messages", groupID)
}

func userGroupsKey(userID int64) string {
	return fmt.Sprintf("user:%d:groups", userID)
}

func userFriendsKey(userID int64) string {
	return fmt.Sprintf("user:%d:friends", userID)
}

func userFriendRequestsKey(userID int64) string {
	return fmt.Sprintf("user:%d:friend_requests", userID)
}

func userOfflineKey(userID int64) string {
	return fmt.Sprintf("user:%d:offline", userID)
}

func userOnlineFlagKey(userID int64) string {
	return fmt.Sprintf("user:%d:online", userID)
}

// onlineUsersKey is the global set mirroring RedisService's ONLINE_USERS_KEY.
const onlineUsersKey = "online_users"

func groupMessageReadersKey(groupID int64, messageID string) string {
	return fmt.Sprintf("group:%d:message:%s:read", groupID, messageID)
}

func groupMessageReadTimestampsKey(groupID int64, messageID string) string {
	return fmt.Sprintf("group:%d:message:%s:read_timestamps", groupID, messageID)
}
