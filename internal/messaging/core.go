// Package messaging implements MessagingCore (C6): private/group send,
// offline parking, recall, read receipts, history reads, the friend-request
// state machine, group lifecycle, and presence. Grounded on
// original_source/src/server/ChatServer.chat.cpp and ChatServer.message.cpp
// for operation semantics, translated onto the HotStore/ColdStore
// abstractions rather than talking to Redis/Postgres directly — this is the
// one package every wire handler ultimately calls through.
package messaging

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/relaychat/server/internal/coldstore"
	"github.com/relaychat/server/internal/domain"
	"github.com/relaychat/server/internal/hotstore"
)

const (
	privateStreamLimit = 100
	groupStreamLimit   = 200
	recallWindow       = 2 * time.Minute
	onlineFlagTTL      = 2 * time.Minute
)

// Core is MessagingCore. One instance is shared by the Dispatcher, which
// also runs the login-time offline flush, and the Server, which marks a
// user offline on disconnect.
type Core struct {
	Hot    hotstore.Store
	Cold   coldstore.Store
	Users  coldstore.Users
	Events EventPublisher
	Logger *logrus.Logger
}

// New builds a Core from its collaborators.
func New(hot hotstore.Store, cold coldstore.Store, users coldstore.Users, events EventPublisher, logger *logrus.Logger) *Core {
	if events == nil {
		events = NopPublisher{}
	}
	return &Core{Hot: hot, Cold: cold, Users: users, Events: events, Logger: logger}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func encodeMessage(m *domain.Message) (string, error) {
	b, err := json.Marshal(m)
	return string(b), err
}

func decodeMessage(raw string) (*domain.Message, error) {
	var m domain.Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ---- Private messaging -----------------------------------------------

// SendPrivate forms a server-assigned Message, appends it to the pair's hot
// stream trimmed to the last 100 entries, and parks a copy in the
// recipient's offline queue when they are not online. Delivery to a live
// recipient session is the Dispatcher's job; this only persists and parks.
func (c *Core) SendPrivate(ctx context.Context, from, to int64, content string) (*domain.Message, error) {
	if from == to {
		return nil, domain.ErrSelfTarget
	}
	friend, err := c.IsFriend(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if !friend {
		return nil, domain.ErrNotFriend
	}

	msg := &domain.Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Kind:      domain.KindPrivate,
		Content:   content,
		Timestamp: nowMillis(),
	}

	key := privateStreamKey(from, to)
	if err := c.appendAndTrim(ctx, key, msg, privateStreamLimit); err != nil {
		return nil, err
	}

	online, err := c.IsOnline(ctx, to)
	if err != nil {
		return nil, err
	}
	if !online {
		if err := c.parkOffline(ctx, to, msg); err != nil {
			return nil, err
		}
	}

	c.Events.Publish(ctx, "message.private.sent", msg)
	return msg, nil
}

// SendGroup verifies membership, appends to the group's hot stream trimmed
// to the last 200 entries, and parks a copy for every offline member other
// than the sender.
func (c *Core) SendGroup(ctx context.Context, from, groupID int64, content string) (*domain.Message, error) {
	isMember, err := c.isGroupMember(ctx, groupID, from)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, domain.ErrNotMember
	}

	msg := &domain.Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        groupID,
		Kind:      domain.KindGroup,
		Content:   content,
		Timestamp: nowMillis(),
	}

	key := groupStreamKey(groupID)
	if err := c.appendAndTrim(ctx, key, msg, groupStreamLimit); err != nil {
		return nil, err
	}

	members, err := c.Hot.SetMembers(ctx, groupMembersKey(groupID))
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "list group members", err)
	}
	for _, memberStr := range members {
		memberID, err := strconv.ParseInt(memberStr, 10, 64)
		if err != nil || memberID == from {
			continue
		}
		online, err := c.IsOnline(ctx, memberID)
		if err != nil {
			continue
		}
		if !online {
			if err := c.parkOffline(ctx, memberID, msg); err != nil {
				c.Logger.WithError(err).WithField("member", memberID).Warn("failed to park offline group message")
			}
		}
	}

	c.Events.Publish(ctx, "message.group.sent", msg)
	return msg, nil
}

func (c *Core) appendAndTrim(ctx context.Context, key string, msg *domain.Message, limit int64) error {
	encoded, err := encodeMessage(msg)
	if err != nil {
		return domain.Wrap(domain.UpstreamFailure, "encode message", err)
	}
	if err := c.Hot.ListAppend(ctx, key, encoded); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "append message", err)
	}
	if err := c.Hot.ListTrim(ctx, key, -limit, -1); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "trim stream", err)
	}
	return nil
}

func (c *Core) parkOffline(ctx context.Context, userID int64, msg *domain.Message) error {
	encoded, err := encodeMessage(msg)
	if err != nil {
		return domain.Wrap(domain.UpstreamFailure, "encode offline message", err)
	}
	if err := c.Hot.ListAppend(ctx, userOfflineKey(userID), encoded); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "park offline message", err)
	}
	return nil
}

// DrainOffline returns and clears userID's offline queue in FIFO order, for
// the Dispatcher's login-time flush (spec.md §6.4).
func (c *Core) DrainOffline(ctx context.Context, userID int64) ([]*domain.Message, error) {
	key := userOfflineKey(userID)
	raw, err := c.Hot.ListRange(ctx, key, 0, -1)
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "read offline queue", err)
	}
	msgs := make([]*domain.Message, 0, len(raw))
	for _, r := range raw {
		m, err := decodeMessage(r)
		if err != nil {
			c.Logger.WithError(err).Warn("skipping malformed offline entry")
			continue
		}
		msgs = append(msgs, m)
	}
	if err := c.Hot.Del(ctx, key); err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "clear offline queue", err)
	}
	return msgs, nil
}

// ---- History -----------------------------------------------------------

func (c *Core) hotPrivateMessages(ctx context.Context, a, b int64) ([]*domain.Message, error) {
	raw, err := c.Hot.ListRange(ctx, privateStreamKey(a, b), 0, -1)
	if err != nil {
		return nil, err
	}
	return decodeAll(c.Logger, raw), nil
}

func (c *Core) hotGroupMessages(ctx context.Context, groupID int64) ([]*domain.Message, error) {
	raw, err := c.Hot.ListRange(ctx, groupStreamKey(groupID), 0, -1)
	if err != nil {
		return nil, err
	}
	return decodeAll(c.Logger, raw), nil
}

func decodeAll(logger *logrus.Logger, raw []string) []*domain.Message {
	out := make([]*domain.Message, 0, len(raw))
	for _, r := range raw {
		m, err := decodeMessage(r)
		if err != nil {
			logger.WithError(err).Warn("skipping malformed stream entry")
			continue
		}
		out = append(out, m)
	}
	return out
}

// HistoryPrivate reads cold storage most-recent-first; if fewer than count
// rows are returned (and this is the first page) it tops up from the most
// recent hot-stream entries not already represented in the cold page.
func (c *Core) HistoryPrivate(ctx context.Context, a, b int64, count, offset int) ([]*domain.Message, error) {
	if count < 0 || offset < 0 {
		return nil, domain.NewError(domain.BadRequest, "count and offset must be >= 0")
	}
	cold, err := c.Cold.HistoryPrivate(ctx, a, b, count, offset)
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "read private history", err)
	}
	if offset > 0 || len(cold) >= count {
		return cold, nil
	}

	hot, err := c.hotPrivateMessages(ctx, a, b)
	if err != nil {
		c.Logger.WithError(err).Warn("hot top-up failed, returning cold-only history")
		return cold, nil
	}
	return topUp(cold, hot, count), nil
}

// HistoryGroup mirrors HistoryPrivate for a group's message stream.
func (c *Core) HistoryGroup(ctx context.Context, groupID int64, count, offset int) ([]*domain.Message, error) {
	if count < 0 || offset < 0 {
		return nil, domain.NewError(domain.BadRequest, "count and offset must be >= 0")
	}
	cold, err := c.Cold.HistoryGroup(ctx, groupID, count, offset)
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "read group history", err)
	}
	if offset > 0 || len(cold) >= count {
		return cold, nil
	}

	hot, err := c.hotGroupMessages(ctx, groupID)
	if err != nil {
		c.Logger.WithError(err).Warn("hot top-up failed, returning cold-only history")
		return cold, nil
	}
	return topUp(cold, hot, count), nil
}

// topUp appends the most-recent hot entries not already present in cold,
// most-recent-first, until count total entries are collected.
func topUp(cold, hot []*domain.Message, count int) []*domain.Message {
	seen := make(map[string]bool, len(cold))
	for _, m := range cold {
		seen[m.ID] = true
	}
	result := cold
	for i := len(hot) - 1; i >= 0 && len(result) < count; i-- {
		if !seen[hot[i].ID] {
			result = append(result, hot[i])
			seen[hot[i].ID] = true
		}
	}
	return result
}

// ---- Recall --------------------------------------------------------------

func findInStream(stream []string, messageID string) (int, *domain.Message, error) {
	for i, raw := range stream {
		m, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		if m.ID == messageID {
			return i, m, nil
		}
	}
	return -1, nil, domain.NewError(domain.NotFound, "message not found")
}

// RecallPrivate is valid only when actor is the sender and the message is
// within the 2-minute recall window.
func (c *Core) RecallPrivate(ctx context.Context, actor, counterpart int64, messageID string) (*domain.Message, error) {
	key := privateStreamKey(actor, counterpart)
	stream, err := c.Hot.ListRange(ctx, key, 0, -1)
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "read stream", err)
	}

	idx, msg, err := findInStream(stream, messageID)
	if err != nil {
		return nil, err
	}
	if msg.From != actor {
		return nil, domain.ErrNotSender
	}
	if nowMillis()-msg.Timestamp > recallWindow.Milliseconds() {
		return nil, domain.ErrRecallExpired
	}

	msg.Recalled = true
	msg.RecalledAt = nowMillis()
	msg.RecalledBy = actor
	if err := c.rewriteEntry(ctx, key, idx, msg); err != nil {
		return nil, err
	}

	c.Events.Publish(ctx, "message.private.recalled", msg)
	return msg, nil
}

// RecallGroup allows the sender within the recall window, or the group's
// creator at any time, per spec.md §4.4.
func (c *Core) RecallGroup(ctx context.Context, actor, groupID int64, messageID string) (*domain.Message, error) {
	isMember, err := c.isGroupMember(ctx, groupID, actor)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, domain.ErrNotMember
	}

	key := groupStreamKey(groupID)
	stream, err := c.Hot.ListRange(ctx, key, 0, -1)
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "read stream", err)
	}

	idx, msg, err := findInStream(stream, messageID)
	if err != nil {
		return nil, err
	}

	creatorID, err := c.groupCreatorID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	switch {
	case msg.From == actor:
		if nowMillis()-msg.Timestamp > recallWindow.Milliseconds() {
			return nil, domain.ErrRecallExpired
		}
	case actor == creatorID:
		// creators may recall any message in their group without the window.
	default:
		return nil, domain.ErrNotSender
	}

	msg.Recalled = true
	msg.RecalledAt = nowMillis()
	msg.RecalledBy = actor
	if err := c.rewriteEntry(ctx, key, idx, msg); err != nil {
		return nil, err
	}

	c.Events.Publish(ctx, "message.group.recalled", msg)
	return msg, nil
}

func (c *Core) rewriteEntry(ctx context.Context, key string, index int, msg *domain.Message) error {
	encoded, err := encodeMessage(msg)
	if err != nil {
		return domain.Wrap(domain.UpstreamFailure, "encode message", err)
	}
	if err := c.Hot.ListSet(ctx, key, int64(index), encoded); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "rewrite stream entry", err)
	}
	return nil
}

// ---- Read receipts ---------------------------------------------------

// MarkReadPrivate verifies reader is the intended recipient before setting
// the message's read flag in place in the pair's hot stream.
func (c *Core) MarkReadPrivate(ctx context.Context, reader, counterpart int64, messageID string) error {
	key := privateStreamKey(reader, counterpart)
	stream, err := c.Hot.ListRange(ctx, key, 0, -1)
	if err != nil {
		return domain.Wrap(domain.UpstreamFailure, "read stream", err)
	}
	idx, msg, err := findInStream(stream, messageID)
	if err != nil {
		return err
	}
	if msg.To != reader {
		return domain.ErrNotRecipient
	}

	msg.Read = true
	msg.ReadAt = nowMillis()
	return c.rewriteEntry(ctx, key, idx, msg)
}

// MarkReadGroup records reader in the message's read-by set and stores a
// per-user read timestamp. Spec.md §9 notes no API exposes this data back to
// clients, so it is write-only bookkeeping.
func (c *Core) MarkReadGroup(ctx context.Context, reader, groupID int64, messageID string) error {
	isMember, err := c.isGroupMember(ctx, groupID, reader)
	if err != nil {
		return err
	}
	if !isMember {
		return domain.ErrNotMember
	}

	if err := c.Hot.SetAdd(ctx, groupMessageReadersKey(groupID, messageID), strconv.FormatInt(reader, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "record group read", err)
	}
	if err := c.Hot.HashSet(ctx, groupMessageReadTimestampsKey(groupID, messageID), strconv.FormatInt(reader, 10), strconv.FormatInt(nowMillis(), 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "record group read timestamp", err)
	}
	return nil
}

// ---- Social graph -----------------------------------------------------

// IsFriend reports whether a and b are friends via the bidirectional hot set.
func (c *Core) IsFriend(ctx context.Context, a, b int64) (bool, error) {
	ok, err := c.Hot.SetContains(ctx, userFriendsKey(a), strconv.FormatInt(b, 10))
	if err != nil {
		return false, domain.Wrap(domain.UpstreamFailure, "check friendship", err)
	}
	return ok, nil
}

// SendFriendRequest records a pending edge from→to, rejecting self-targets,
// existing friendships, and duplicate pending requests.
func (c *Core) SendFriendRequest(ctx context.Context, from, to int64) error {
	if from == to {
		return domain.ErrSelfTarget
	}
	friend, err := c.IsFriend(ctx, from, to)
	if err != nil {
		return err
	}
	if friend {
		return domain.ErrAlreadyFriends
	}
	pending, err := c.Hot.SetContains(ctx, userFriendRequestsKey(to), strconv.FormatInt(from, 10))
	if err != nil {
		return domain.Wrap(domain.UpstreamFailure, "check pending request", err)
	}
	if pending {
		return domain.ErrRequestPending
	}
	if err := c.Hot.SetAdd(ctx, userFriendRequestsKey(to), strconv.FormatInt(from, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "record friend request", err)
	}
	return nil
}

// AcceptFriendRequest clears the pending edge from requester→acceptor and
// adds both halves of the friendship. The relational mirror is left to
// ArchiveWorker's friendship pass rather than written here synchronously.
func (c *Core) AcceptFriendRequest(ctx context.Context, acceptor, requester int64) error {
	pending, err := c.Hot.SetContains(ctx, userFriendRequestsKey(acceptor), strconv.FormatInt(requester, 10))
	if err != nil {
		return domain.Wrap(domain.UpstreamFailure, "check pending request", err)
	}
	if !pending {
		return domain.NewError(domain.NotFound, "no pending friend request from that user")
	}
	if err := c.Hot.SetRemove(ctx, userFriendRequestsKey(acceptor), strconv.FormatInt(requester, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "clear pending request", err)
	}
	if err := c.Hot.SetAdd(ctx, userFriendsKey(acceptor), strconv.FormatInt(requester, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "add friendship", err)
	}
	if err := c.Hot.SetAdd(ctx, userFriendsKey(requester), strconv.FormatInt(acceptor, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "add friendship", err)
	}
	c.Events.Publish(ctx, "friend.accepted", map[string]int64{"acceptor": acceptor, "requester": requester})
	return nil
}

// RejectFriendRequest silently clears a pending edge.
func (c *Core) RejectFriendRequest(ctx context.Context, rejecter, requester int64) error {
	if err := c.Hot.SetRemove(ctx, userFriendRequestsKey(rejecter), strconv.FormatInt(requester, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "clear pending request", err)
	}
	return nil
}

// AddFriend implements wire code 28 (ADD_FRIEND_REQUEST, with ADD_FRIEND as
// its legacy alias, spec.md §9 open question 4): if from already has a
// pending request from to (a mutual add), it completes as an accept by from;
// otherwise it records
// a new pending request. This collapses the protocol's single code onto the
// three-operation internal state machine without inventing a second wire
// type the original spec never defines.
func (c *Core) AddFriend(ctx context.Context, from, to int64) (accepted bool, err error) {
	mutual, err := c.Hot.SetContains(ctx, userFriendRequestsKey(from), strconv.FormatInt(to, 10))
	if err != nil {
		return false, domain.Wrap(domain.UpstreamFailure, "check mutual request", err)
	}
	if mutual {
		if err := c.AcceptFriendRequest(ctx, from, to); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := c.SendFriendRequest(ctx, from, to); err != nil {
		return false, err
	}
	return false, nil
}

// ListFriends returns the full friend set for userID.
func (c *Core) ListFriends(ctx context.Context, userID int64) ([]int64, error) {
	return c.readIDSet(ctx, userFriendsKey(userID))
}

// ListPendingRequests returns the ids of users with a pending request to userID.
func (c *Core) ListPendingRequests(ctx context.Context, userID int64) ([]int64, error) {
	return c.readIDSet(ctx, userFriendRequestsKey(userID))
}

// RemoveFriend deletes both halves of the friendship.
func (c *Core) RemoveFriend(ctx context.Context, a, b int64) error {
	if err := c.Hot.SetRemove(ctx, userFriendsKey(a), strconv.FormatInt(b, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "remove friendship", err)
	}
	if err := c.Hot.SetRemove(ctx, userFriendsKey(b), strconv.FormatInt(a, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "remove friendship", err)
	}
	return nil
}

func (c *Core) readIDSet(ctx context.Context, key string) ([]int64, error) {
	members, err := c.Hot.SetMembers(ctx, key)
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "read set", err)
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// ---- Group lifecycle -----------------------------------------------------

func (c *Core) isGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	ok, err := c.Hot.SetContains(ctx, groupMembersKey(groupID), strconv.FormatInt(userID, 10))
	if err != nil {
		return false, domain.Wrap(domain.UpstreamFailure, "check group membership", err)
	}
	return ok, nil
}

func (c *Core) groupCreatorID(ctx context.Context, groupID int64) (int64, error) {
	v, ok, err := c.Hot.HashGet(ctx, groupMetaKey(groupID), "creatorId")
	if err != nil {
		return 0, domain.Wrap(domain.UpstreamFailure, "read group meta", err)
	}
	if !ok {
		return 0, domain.NewError(domain.NotFound, "group not found")
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, domain.Wrap(domain.UpstreamFailure, "parse group creator", err)
	}
	return id, nil
}

// CreateGroup allocates a monotonic id from cold storage, persists group
// metadata there synchronously (the archive worker's group pass requires
// the groups row to already exist before it will archive any message for
// it), mirrors the metadata into the hot tier, and seeds membership with
// the creator.
func (c *Core) CreateGroup(ctx context.Context, creator int64, name string) (*domain.Group, error) {
	id, err := c.Cold.NextGroupID(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "allocate group id", err)
	}
	g := &domain.Group{ID: id, Name: name, CreatorID: creator, CreatedAt: time.Now()}
	if err := c.Cold.CreateGroup(ctx, g); err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "persist group", err)
	}

	meta := groupMetaKey(id)
	if err := c.Hot.HashSet(ctx, meta, "name", name); err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "write group meta", err)
	}
	if err := c.Hot.HashSet(ctx, meta, "creatorId", strconv.FormatInt(creator, 10)); err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "write group meta", err)
	}
	if err := c.Hot.SetAdd(ctx, groupMembersKey(id), strconv.FormatInt(creator, 10)); err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "seed group membership", err)
	}
	if err := c.Hot.SetAdd(ctx, userGroupsKey(creator), strconv.FormatInt(id, 10)); err != nil {
		return nil, domain.Wrap(domain.UpstreamFailure, "record user group", err)
	}

	c.Events.Publish(ctx, "group.created", g)
	return g, nil
}

// JoinGroup adds userID to an existing group's membership.
func (c *Core) JoinGroup(ctx context.Context, userID, groupID int64) error {
	_, err := c.groupCreatorID(ctx, groupID)
	if err != nil {
		return err
	}
	if err := c.Hot.SetAdd(ctx, groupMembersKey(groupID), strconv.FormatInt(userID, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "join group", err)
	}
	if err := c.Hot.SetAdd(ctx, userGroupsKey(userID), strconv.FormatInt(groupID, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "record user group", err)
	}
	return nil
}

// LeaveGroup removes userID from membership; if the set becomes empty the
// group's hot keys (metadata hash, member set and message stream) are
// deleted (spec.md §3 invariant). The groups row in ColdStore is kept.
func (c *Core) LeaveGroup(ctx context.Context, userID, groupID int64) error {
	if err := c.Hot.SetRemove(ctx, groupMembersKey(groupID), strconv.FormatInt(userID, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "leave group", err)
	}
	if err := c.Hot.SetRemove(ctx, userGroupsKey(userID), strconv.FormatInt(groupID, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "record user group", err)
	}

	remaining, err := c.Hot.SetCardinality(ctx, groupMembersKey(groupID))
	if err != nil {
		return domain.Wrap(domain.UpstreamFailure, "count group members", err)
	}
	if remaining == 0 {
		if err := c.Hot.Del(ctx, groupMetaKey(groupID), groupMembersKey(groupID), groupStreamKey(groupID)); err != nil {
			return domain.Wrap(domain.UpstreamFailure, "delete empty group", err)
		}
	}
	return nil
}

// ListGroups returns the ids of every group userID belongs to.
func (c *Core) ListGroups(ctx context.Context, userID int64) ([]int64, error) {
	return c.readIDSet(ctx, userGroupsKey(userID))
}

// GroupMembers returns the ids of every member of groupID.
func (c *Core) GroupMembers(ctx context.Context, groupID int64) ([]int64, error) {
	return c.readIDSet(ctx, groupMembersKey(groupID))
}

// ---- Presence -----------------------------------------------------------

// MarkOnline adds userID to the online set and refreshes its TTL'd
// liveness flag, a safeguard against a lost explicit MarkOffline.
func (c *Core) MarkOnline(ctx context.Context, userID int64) error {
	if err := c.Hot.SetAdd(ctx, onlineUsersKey, strconv.FormatInt(userID, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "mark online", err)
	}
	if err := c.Hot.SetWithTTL(ctx, userOnlineFlagKey(userID), "1", onlineFlagTTL); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "set online flag", err)
	}
	return nil
}

// MarkOffline removes userID from the online set and clears its flag.
func (c *Core) MarkOffline(ctx context.Context, userID int64) error {
	if err := c.Hot.SetRemove(ctx, onlineUsersKey, strconv.FormatInt(userID, 10)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "mark offline", err)
	}
	if err := c.Hot.Del(ctx, userOnlineFlagKey(userID)); err != nil {
		return domain.Wrap(domain.UpstreamFailure, "clear online flag", err)
	}
	return nil
}

// IsOnline reports membership in the online set.
func (c *Core) IsOnline(ctx context.Context, userID int64) (bool, error) {
	ok, err := c.Hot.SetContains(ctx, onlineUsersKey, strconv.FormatInt(userID, 10))
	if err != nil {
		return false, domain.Wrap(domain.UpstreamFailure, "check online", err)
	}
	return ok, nil
}
