// Package dispatcher implements Dispatcher (C8): it decodes wire frames
// (internal/protocol), routes each to the matching MessagingCore/
// UserRepository/VerificationCodeService call per the message-type registry,
// and writes back a typed response frame. Grounded on
// internal/handlers/chat_handler.go's readPump/processMessage shape
// (per-connection rate limiter, type switch over incoming messages),
// generalized from JSON frames to the line-oriented protocol package.
package dispatcher

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/relaychat/server/internal/coldstore"
	"github.com/relaychat/server/internal/domain"
	"github.com/relaychat/server/internal/email"
	"github.com/relaychat/server/internal/messaging"
	"github.com/relaychat/server/internal/protocol"
	"github.com/relaychat/server/internal/session"
	"github.com/relaychat/server/internal/verification"
)

// maxMessageRate matches chat_handler.go's maxMessageRate: 10 messages per
// second per connection, burst of twice that.
const (
	maxMessageRate = 10
	rateBurst      = maxMessageRate * 2
)

// State is the per-connection mutable data the Dispatcher needs across
// frames: authentication and a token bucket. The Server owns one per
// accepted connection and passes it into every Handle call for that
// connection.
type State struct {
	UserID        int64
	Authenticated bool
	Limiter       *rate.Limiter
}

// NewState builds a fresh, unauthenticated per-connection State.
func NewState() *State {
	return &State{Limiter: rate.NewLimiter(rate.Limit(maxMessageRate), rateBurst)}
}

// Dispatcher wires the wire protocol onto MessagingCore and its neighboring
// services. One instance is shared by every connection the Server accepts.
type Dispatcher struct {
	Core         *messaging.Core
	Users        coldstore.Users
	Verification *verification.Service
	Email        email.Gateway
	Sessions     *session.Registry
	Logger       *logrus.Logger
}

// New builds a Dispatcher from its collaborators.
func New(core *messaging.Core, users coldstore.Users, verif *verification.Service, mailer email.Gateway, sessions *session.Registry, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{Core: core, Users: users, Verification: verif, Email: mailer, Sessions: sessions, Logger: logger}
}

// Handle decodes one line of wire input from conn (bound to st) and writes
// back zero or more response frames. A decode error yields an ERROR frame
// without closing the connection, per spec.md §7.
func (d *Dispatcher) Handle(ctx context.Context, conn session.Conn, st *State, line string) {
	if !st.Limiter.Allow() {
		d.sendError(conn, "rate limit exceeded")
		return
	}

	frame, err := protocol.Decode(line)
	if err != nil {
		d.sendError(conn, err.Error())
		return
	}

	d.Sessions.Touch(conn)
	d.route(ctx, conn, st, frame)
}

func (d *Dispatcher) route(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	switch f.Type {
	case protocol.LoginRequest:
		d.handleLogin(ctx, conn, st, f)
	case protocol.LogoutRequest:
		d.handleLogout(ctx, conn, st, f)
	case protocol.HeartbeatRequest:
		d.handleHeartbeat(conn)
	case protocol.RegisterRequest:
		d.handleRegister(ctx, conn, f)
	case protocol.VerifyCodeRequest:
		d.handleVerifyCodeRequest(ctx, conn, f)
	case protocol.PrivateChat:
		d.handlePrivateChat(ctx, conn, st, f)
	case protocol.GroupChat:
		d.handleGroupChat(ctx, conn, st, f)
	case protocol.CreateGroup:
		d.handleCreateGroup(ctx, conn, st, f)
	case protocol.JoinGroup:
		d.handleJoinGroup(ctx, conn, st, f)
	case protocol.LeaveGroup:
		d.handleLeaveGroup(ctx, conn, st, f)
	case protocol.GetUserList:
		d.handleGetUserList(ctx, conn, st)
	case protocol.GetGroupList:
		d.handleGetGroupList(ctx, conn, st)
	case protocol.GetGroupMembers:
		d.handleGetGroupMembers(ctx, conn, st, f)
	case protocol.GetUserFriends:
		d.handleGetUserFriends(ctx, conn, st)
	case protocol.AddFriendRequest: // same numeric code as the legacy AddFriend alias
		d.handleAddFriend(ctx, conn, st, f)
	case protocol.GetChatHistory:
		d.handleGetChatHistory(ctx, conn, st, f)
	case protocol.RecallMessage:
		d.handleRecallMessage(ctx, conn, st, f)
	case protocol.MarkMessageRead:
		d.handleMarkMessageRead(ctx, conn, st, f)
	default:
		d.sendError(conn, "unknown message type")
	}
}

// ---- helpers --------------------------------------------------------------

func (d *Dispatcher) send(conn session.Conn, f *protocol.Frame) {
	encoded, err := f.Encode()
	if err != nil {
		d.Logger.WithError(err).Warn("failed to encode response frame")
		return
	}
	if err := conn.Send(encoded); err != nil {
		d.Logger.WithError(err).Debug("failed to write response frame")
	}
}

func (d *Dispatcher) sendError(conn session.Conn, message string) {
	d.send(conn, protocol.MustFrame(protocol.Error, "errorMsg", sanitize(message)))
}

// sanitize replaces reserved wire characters in content that ultimately came
// from a user or an underlying error, per spec.md §9 "Protocol fragility".
func sanitize(s string) string {
	r := strings.NewReplacer(";", ",", "=", "-", "\n", " ")
	return r.Replace(s)
}

func requireAuth(st *State) bool { return st.Authenticated }

func statusField(ok bool) string {
	if ok {
		return "0"
	}
	return "1"
}

func errKindMessage(err error) string {
	if de, ok := err.(*domain.DomainError); ok {
		return de.Error()
	}
	return "internal error"
}

// ---- session --------------------------------------------------------------

func (d *Dispatcher) handleLogin(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	username, uErr := f.Require("username")
	password, pErr := f.Require("password")
	if uErr != nil || pErr != nil {
		d.send(conn, protocol.MustFrame(protocol.LoginResponse, "status", statusField(false), "errorMsg", "username and password are required"))
		return
	}

	userID, err := d.Users.VerifyCredentials(ctx, username, password)
	if err != nil {
		d.send(conn, protocol.MustFrame(protocol.LoginResponse, "status", statusField(false), "errorMsg", errKindMessage(err)))
		return
	}

	user, err := d.Users.FindByID(ctx, userID)
	if err != nil {
		d.send(conn, protocol.MustFrame(protocol.LoginResponse, "status", statusField(false), "errorMsg", errKindMessage(err)))
		return
	}

	if evicted, had := d.Sessions.Bind(userID, conn); had {
		d.Logger.WithField("userId", userID).Info("evicted prior session on new login")
		if err := evicted.Close(); err != nil {
			d.Logger.WithError(err).WithField("userId", userID).Debug("failed to close evicted connection")
		}
	}
	st.UserID = userID
	st.Authenticated = true

	if err := d.Core.MarkOnline(ctx, userID); err != nil {
		d.Logger.WithError(err).WithField("userId", userID).Warn("failed to mark user online")
	}
	if err := d.Users.SetOnline(ctx, userID, true); err != nil {
		d.Logger.WithError(err).WithField("userId", userID).Warn("failed to persist online flag")
	}
	if err := d.Users.UpdateLastLogin(ctx, userID); err != nil {
		d.Logger.WithError(err).WithField("userId", userID).Warn("failed to update last login")
	}

	offline, err := d.Core.DrainOffline(ctx, userID)
	if err != nil {
		d.Logger.WithError(err).WithField("userId", userID).Warn("failed to drain offline queue")
		offline = nil
	}

	d.send(conn, protocol.MustFrame(protocol.LoginResponse,
		"status", statusField(true),
		"userId", strconv.FormatInt(user.ID, 10),
		"username", user.Username,
		"email", user.Email,
		"avatar", user.Avatar,
		"offlineMsgCount", strconv.Itoa(len(offline)),
	))

	d.pushOfflineQueue(conn, offline)
}

// pushOfflineQueue re-frames each drained message as a PRIVATE_CHAT or
// GROUP_CHAT push carrying offline=true, in FIFO order, per spec.md §6.4.
func (d *Dispatcher) pushOfflineQueue(conn session.Conn, msgs []*domain.Message) {
	for _, m := range msgs {
		if m.Kind == domain.KindGroup {
			d.send(conn, protocol.MustFrame(protocol.GroupChat,
				"groupId", strconv.FormatInt(m.To, 10),
				"fromUserId", strconv.FormatInt(m.From, 10),
				"content", m.Content,
				"timestamp", strconv.FormatInt(m.Timestamp, 10),
				"offline", "true",
			))
			continue
		}
		d.send(conn, protocol.MustFrame(protocol.PrivateChat,
			"fromUserId", strconv.FormatInt(m.From, 10),
			"content", m.Content,
			"timestamp", strconv.FormatInt(m.Timestamp, 10),
			"offline", "true",
		))
	}
}

func (d *Dispatcher) handleLogout(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	if !requireAuth(st) {
		d.send(conn, protocol.MustFrame(protocol.LogoutResponse, "status", statusField(false)))
		return
	}
	userID := st.UserID
	d.Sessions.Unbind(userID)
	if err := d.Core.MarkOffline(ctx, userID); err != nil {
		d.Logger.WithError(err).WithField("userId", userID).Warn("failed to mark user offline")
	}
	if err := d.Users.SetOnline(ctx, userID, false); err != nil {
		d.Logger.WithError(err).WithField("userId", userID).Warn("failed to persist offline flag")
	}
	st.Authenticated = false
	st.UserID = 0
	d.send(conn, protocol.MustFrame(protocol.LogoutResponse, "status", statusField(true)))
}

func (d *Dispatcher) handleHeartbeat(conn session.Conn) {
	d.send(conn, protocol.MustFrame(protocol.HeartbeatResponse, "timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10)))
}

// ---- registration -----------------------------------------------------

func (d *Dispatcher) handleVerifyCodeRequest(ctx context.Context, conn session.Conn, f *protocol.Frame) {
	emailAddr, err := f.Require("email")
	if err != nil {
		d.send(conn, protocol.MustFrame(protocol.VerifyCodeResponse, "status", statusField(false), "message", err.Error()))
		return
	}

	code, err := d.Verification.Generate(ctx, emailAddr)
	if err != nil {
		d.Logger.WithError(err).WithField("email", emailAddr).Error("failed to generate verification code")
		d.send(conn, protocol.MustFrame(protocol.VerifyCodeResponse, "status", statusField(false), "message", "failed to generate verification code"))
		return
	}

	go func() {
		subject := "Your verification code"
		body := "Your verification code is " + code
		if sendErr := d.Email.Send(context.Background(), emailAddr, subject, body); sendErr != nil {
			d.Logger.WithError(sendErr).WithField("email", emailAddr).Warn("failed to send verification email")
		}
	}()

	d.send(conn, protocol.MustFrame(protocol.VerifyCodeResponse, "status", statusField(true), "message", "verification code sent"))
}

func (d *Dispatcher) handleRegister(ctx context.Context, conn session.Conn, f *protocol.Frame) {
	username, uErr := f.Require("username")
	password, pErr := f.Require("password")
	emailAddr, eErr := f.Require("email")
	code, cErr := f.Require("code")
	if uErr != nil || pErr != nil || eErr != nil || cErr != nil {
		d.send(conn, protocol.MustFrame(protocol.RegisterResponse, "status", statusField(false), "errorMsg", "username, password, email and code are required"))
		return
	}
	avatar, _ := f.Get("avatar")
	username, emailAddr, avatar = sanitize(username), sanitize(emailAddr), sanitize(avatar)

	if !d.Verification.Verify(ctx, emailAddr, code) {
		d.send(conn, protocol.MustFrame(protocol.RegisterResponse, "status", statusField(false), "errorMsg", "Invalid or expired verification code"))
		return
	}

	if _, err := d.Users.Register(ctx, username, password, emailAddr, avatar); err != nil {
		d.send(conn, protocol.MustFrame(protocol.RegisterResponse, "status", statusField(false), "errorMsg", errKindMessage(err)))
		return
	}

	d.send(conn, protocol.MustFrame(protocol.RegisterResponse,
		"status", statusField(true),
		"username", username,
		"email", emailAddr,
	))
}

// ---- private / group chat ----------------------------------------------

func (d *Dispatcher) handlePrivateChat(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	to, ok := f.GetInt64("toUserId")
	content, cErr := f.Require("content")
	if !ok || cErr != nil {
		d.sendError(conn, "toUserId and content are required")
		return
	}
	content = sanitize(content)

	msg, err := d.Core.SendPrivate(ctx, st.UserID, to, content)
	if err != nil {
		d.sendError(conn, errKindMessage(err))
		return
	}

	if recipientConn, live := d.Sessions.Lookup(to); live {
		d.send(recipientConn, protocol.MustFrame(protocol.PrivateChat,
			"fromUserId", strconv.FormatInt(msg.From, 10),
			"content", msg.Content,
			"timestamp", strconv.FormatInt(msg.Timestamp, 10),
		))
	}
}

func (d *Dispatcher) handleGroupChat(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	groupID, ok := f.GetInt64("groupId")
	content, cErr := f.Require("content")
	if !ok || cErr != nil {
		d.sendError(conn, "groupId and content are required")
		return
	}
	content = sanitize(content)

	msg, err := d.Core.SendGroup(ctx, st.UserID, groupID, content)
	if err != nil {
		d.sendError(conn, errKindMessage(err))
		return
	}

	members, err := d.Core.GroupMembers(ctx, groupID)
	if err != nil {
		d.Logger.WithError(err).WithField("groupId", groupID).Warn("failed to list group members for fan-out")
		return
	}
	for _, memberID := range members {
		if memberID == st.UserID {
			continue
		}
		if memberConn, live := d.Sessions.Lookup(memberID); live {
			d.send(memberConn, protocol.MustFrame(protocol.GroupChat,
				"groupId", strconv.FormatInt(groupID, 10),
				"fromUserId", strconv.FormatInt(msg.From, 10),
				"content", msg.Content,
				"timestamp", strconv.FormatInt(msg.Timestamp, 10),
			))
		}
	}
}

// ---- groups -------------------------------------------------------------

func (d *Dispatcher) handleCreateGroup(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	name, err := f.Require("groupName")
	if err != nil {
		d.send(conn, protocol.MustFrame(protocol.CreateGroupResponse, "status", statusField(false)))
		return
	}
	name = sanitize(name)

	g, err := d.Core.CreateGroup(ctx, st.UserID, name)
	if err != nil {
		d.Logger.WithError(err).Warn("failed to create group")
		d.send(conn, protocol.MustFrame(protocol.CreateGroupResponse, "status", statusField(false)))
		return
	}

	d.send(conn, protocol.MustFrame(protocol.CreateGroupResponse,
		"status", statusField(true),
		"groupId", strconv.FormatInt(g.ID, 10),
		"groupName", g.Name,
	))
}

func (d *Dispatcher) handleJoinGroup(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	groupID, ok := f.GetInt64("groupId")
	if !ok {
		d.send(conn, protocol.MustFrame(protocol.JoinGroupResponse, "status", statusField(false)))
		return
	}
	if err := d.Core.JoinGroup(ctx, st.UserID, groupID); err != nil {
		d.send(conn, protocol.MustFrame(protocol.JoinGroupResponse, "status", statusField(false), "groupId", strconv.FormatInt(groupID, 10)))
		return
	}
	d.send(conn, protocol.MustFrame(protocol.JoinGroupResponse, "status", statusField(true), "groupId", strconv.FormatInt(groupID, 10)))
}

func (d *Dispatcher) handleLeaveGroup(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	groupID, ok := f.GetInt64("groupId")
	if !ok {
		d.send(conn, protocol.MustFrame(protocol.LeaveGroupResponse, "status", statusField(false)))
		return
	}
	if err := d.Core.LeaveGroup(ctx, st.UserID, groupID); err != nil {
		d.send(conn, protocol.MustFrame(protocol.LeaveGroupResponse, "status", statusField(false), "groupId", strconv.FormatInt(groupID, 10)))
		return
	}
	d.send(conn, protocol.MustFrame(protocol.LeaveGroupResponse, "status", statusField(true), "groupId", strconv.FormatInt(groupID, 10)))
}

// ---- listings -------------------------------------------------------------

type userSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

func (d *Dispatcher) handleGetUserList(ctx context.Context, conn session.Conn, st *State) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	users, err := d.Users.ListOnline(ctx)
	if err != nil {
		d.send(conn, protocol.MustFrame(protocol.UserListResponse, "status", statusField(false)))
		return
	}
	summaries := make([]userSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, userSummary{ID: u.ID, Username: u.Username, Online: u.Online})
	}
	payload, err := json.Marshal(summaries)
	if err != nil {
		d.send(conn, protocol.MustFrame(protocol.UserListResponse, "status", statusField(false)))
		return
	}
	d.send(conn, protocol.MustFrame(protocol.UserListResponse, "status", statusField(true), "users", string(payload)))
}

func (d *Dispatcher) handleGetGroupList(ctx context.Context, conn session.Conn, st *State) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	groups, err := d.Core.ListGroups(ctx, st.UserID)
	if err != nil {
		d.send(conn, protocol.MustFrame(protocol.GroupListResponse, "status", statusField(false)))
		return
	}
	d.send(conn, protocol.MustFrame(protocol.GroupListResponse, "status", statusField(true), "groups", joinInt64s(groups)))
}

func (d *Dispatcher) handleGetGroupMembers(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	groupID, ok := f.GetInt64("groupId")
	if !ok {
		d.send(conn, protocol.MustFrame(protocol.GroupMembersResponse, "status", statusField(false)))
		return
	}
	members, err := d.Core.GroupMembers(ctx, groupID)
	if err != nil {
		d.send(conn, protocol.MustFrame(protocol.GroupMembersResponse, "status", statusField(false), "groupId", strconv.FormatInt(groupID, 10)))
		return
	}
	d.send(conn, protocol.MustFrame(protocol.GroupMembersResponse,
		"status", statusField(true),
		"groupId", strconv.FormatInt(groupID, 10),
		"members", joinInt64s(members),
	))
}

func (d *Dispatcher) handleGetUserFriends(ctx context.Context, conn session.Conn, st *State) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	friends, err := d.Core.ListFriends(ctx, st.UserID)
	if err != nil {
		d.send(conn, protocol.MustFrame(protocol.UserFriendsResponse, "status", statusField(false)))
		return
	}
	d.send(conn, protocol.MustFrame(protocol.UserFriendsResponse, "status", statusField(true), "friends", joinInt64s(friends)))
}

func joinInt64s(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// ---- friend requests ------------------------------------------------------

func (d *Dispatcher) handleAddFriend(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	friendIDStr, err := f.Require("friendId")
	if err != nil {
		d.send(conn, protocol.MustFrame(protocol.AddFriendResponse, "status", statusField(false), "message", err.Error()))
		return
	}

	friendID, parseErr := strconv.ParseInt(friendIDStr, 10, 64)
	if parseErr != nil {
		// friendId accepts a username too, per the message-type registry.
		user, lookupErr := d.Users.FindByUsername(ctx, friendIDStr)
		if lookupErr != nil {
			d.send(conn, protocol.MustFrame(protocol.AddFriendResponse, "status", statusField(false), "message", "user not found"))
			return
		}
		friendID = user.ID
	}

	accepted, addErr := d.Core.AddFriend(ctx, st.UserID, friendID)
	if addErr != nil {
		d.send(conn, protocol.MustFrame(protocol.AddFriendResponse, "status", statusField(false), "friendId", strconv.FormatInt(friendID, 10), "message", errKindMessage(addErr)))
		return
	}

	friendUser, lookupErr := d.Users.FindByID(ctx, friendID)
	username := ""
	if lookupErr == nil {
		username = friendUser.Username
	}

	message := "friend request sent"
	if accepted {
		message = "friend request accepted"
	}
	d.send(conn, protocol.MustFrame(protocol.AddFriendResponse,
		"status", statusField(true),
		"friendId", strconv.FormatInt(friendID, 10),
		"username", username,
		"message", message,
	))
}

// ---- history / recall / read receipts -------------------------------------

func (d *Dispatcher) handleGetChatHistory(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	kind, err := f.Require("type")
	if err != nil {
		d.send(conn, protocol.MustFrame(protocol.ChatHistoryResponse, "status", statusField(false)))
		return
	}
	kind = sanitize(kind)
	count := 50
	if c, ok := f.GetInt64("count"); ok {
		count = int(c)
	}

	switch kind {
	case "private":
		targetID, ok := f.GetInt64("targetUserId")
		if !ok {
			d.send(conn, protocol.MustFrame(protocol.ChatHistoryResponse, "status", statusField(false), "type", kind))
			return
		}
		msgs, err := d.Core.HistoryPrivate(ctx, st.UserID, targetID, count, 0)
		if err != nil {
			d.send(conn, protocol.MustFrame(protocol.ChatHistoryResponse, "status", statusField(false), "type", kind))
			return
		}
		payload, _ := json.Marshal(msgs)
		d.send(conn, protocol.MustFrame(protocol.ChatHistoryResponse,
			"status", statusField(true),
			"type", kind,
			"userId", strconv.FormatInt(st.UserID, 10),
			"targetId", strconv.FormatInt(targetID, 10),
			"messages", string(payload),
		))
	case "group":
		groupID, ok := f.GetInt64("groupId")
		if !ok {
			d.send(conn, protocol.MustFrame(protocol.ChatHistoryResponse, "status", statusField(false), "type", kind))
			return
		}
		msgs, err := d.Core.HistoryGroup(ctx, groupID, count, 0)
		if err != nil {
			d.send(conn, protocol.MustFrame(protocol.ChatHistoryResponse, "status", statusField(false), "type", kind))
			return
		}
		payload, _ := json.Marshal(msgs)
		d.send(conn, protocol.MustFrame(protocol.ChatHistoryResponse,
			"status", statusField(true),
			"type", kind,
			"groupId", strconv.FormatInt(groupID, 10),
			"messages", string(payload),
		))
	default:
		d.send(conn, protocol.MustFrame(protocol.ChatHistoryResponse, "status", statusField(false), "type", kind))
	}
}

func (d *Dispatcher) handleRecallMessage(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	messageID, idErr := f.Require("messageId")
	kind, kErr := f.Require("type")
	if idErr != nil || kErr != nil {
		d.send(conn, protocol.MustFrame(protocol.RecallMessageResponse, "status", statusField(false)))
		return
	}
	messageID, kind = sanitize(messageID), sanitize(kind)

	switch kind {
	case "private":
		targetID, ok := f.GetInt64("targetUserId")
		if !ok {
			d.send(conn, protocol.MustFrame(protocol.RecallMessageResponse, "status", statusField(false), "type", kind))
			return
		}
		msg, err := d.Core.RecallPrivate(ctx, st.UserID, targetID, messageID)
		if err != nil {
			d.send(conn, protocol.MustFrame(protocol.RecallMessageResponse, "status", statusField(false), "type", kind, "messageId", messageID))
			return
		}
		resp := protocol.MustFrame(protocol.RecallMessageResponse,
			"status", statusField(true),
			"messageId", messageID,
			"type", kind,
			"fromUserId", strconv.FormatInt(msg.From, 10),
		)
		d.send(conn, resp)
		if targetConn, live := d.Sessions.Lookup(targetID); live {
			d.send(targetConn, resp)
		}
	case "group":
		groupID, ok := f.GetInt64("groupId")
		if !ok {
			d.send(conn, protocol.MustFrame(protocol.RecallMessageResponse, "status", statusField(false), "type", kind))
			return
		}
		msg, err := d.Core.RecallGroup(ctx, st.UserID, groupID, messageID)
		if err != nil {
			d.send(conn, protocol.MustFrame(protocol.RecallMessageResponse, "status", statusField(false), "type", kind, "messageId", messageID))
			return
		}
		resp := protocol.MustFrame(protocol.RecallMessageResponse,
			"status", statusField(true),
			"messageId", messageID,
			"type", kind,
			"fromUserId", strconv.FormatInt(msg.From, 10),
			"groupId", strconv.FormatInt(groupID, 10),
		)
		members, err := d.Core.GroupMembers(ctx, groupID)
		if err == nil {
			for _, memberID := range members {
				if memberConn, live := d.Sessions.Lookup(memberID); live {
					d.send(memberConn, resp)
				}
			}
		} else {
			d.send(conn, resp)
		}
	default:
		d.send(conn, protocol.MustFrame(protocol.RecallMessageResponse, "status", statusField(false), "type", kind))
	}
}

func (d *Dispatcher) handleMarkMessageRead(ctx context.Context, conn session.Conn, st *State, f *protocol.Frame) {
	if !requireAuth(st) {
		d.sendError(conn, "login required")
		return
	}
	messageID, idErr := f.Require("messageId")
	kind, kErr := f.Require("type")
	if idErr != nil || kErr != nil {
		d.send(conn, protocol.MustFrame(protocol.MarkMessageReadResponse, "status", statusField(false)))
		return
	}
	messageID, kind = sanitize(messageID), sanitize(kind)

	switch kind {
	case "private":
		fromID, ok := f.GetInt64("fromUserId")
		if !ok {
			d.send(conn, protocol.MustFrame(protocol.MarkMessageReadResponse, "status", statusField(false), "type", kind))
			return
		}
		if err := d.Core.MarkReadPrivate(ctx, st.UserID, fromID, messageID); err != nil {
			d.send(conn, protocol.MustFrame(protocol.MarkMessageReadResponse, "status", statusField(false), "type", kind, "messageId", messageID))
			return
		}
		resp := protocol.MustFrame(protocol.MarkMessageReadResponse,
			"status", statusField(true),
			"messageId", messageID,
			"type", kind,
			"userId", strconv.FormatInt(st.UserID, 10),
		)
		d.send(conn, resp)
		if fromConn, live := d.Sessions.Lookup(fromID); live {
			d.send(fromConn, resp)
		}
	case "group":
		groupID, ok := f.GetInt64("groupId")
		if !ok {
			d.send(conn, protocol.MustFrame(protocol.MarkMessageReadResponse, "status", statusField(false), "type", kind))
			return
		}
		if err := d.Core.MarkReadGroup(ctx, st.UserID, groupID, messageID); err != nil {
			d.send(conn, protocol.MustFrame(protocol.MarkMessageReadResponse, "status", statusField(false), "type", kind, "messageId", messageID))
			return
		}
		d.send(conn, protocol.MustFrame(protocol.MarkMessageReadResponse,
			"status", statusField(true),
			"messageId", messageID,
			"type", kind,
			"userId", strconv.FormatInt(st.UserID, 10),
		))
	default:
		d.send(conn, protocol.MustFrame(protocol.MarkMessageReadResponse, "status", statusField(false), "type", kind))
	}
}
