// Package protocol implements the line-oriented wire frame the dispatcher
// speaks: "<type>:<k1>=<v1>;<k2>=<v2>;...", one frame per transport
// delivery, no escaping of ';', '=' or newline.
package protocol

// Type is the decimal frame type code from the message-type registry.
type Type int

const (
	LoginRequest         Type = 1
	LoginResponse        Type = 2
	LogoutRequest        Type = 3
	LogoutResponse       Type = 4
	Error                Type = 5
	HeartbeatRequest     Type = 6
	HeartbeatResponse    Type = 7
	RegisterRequest      Type = 8
	RegisterResponse     Type = 9
	VerifyCodeRequest    Type = 10
	VerifyCodeResponse   Type = 11
	PrivateChat          Type = 12
	GroupChat            Type = 13
	CreateGroup          Type = 14
	CreateGroupResponse  Type = 15
	JoinGroup            Type = 16
	JoinGroupResponse    Type = 17
	LeaveGroup           Type = 18
	LeaveGroupResponse   Type = 19
	GetUserList          Type = 20
	UserListResponse     Type = 21
	GetGroupList         Type = 22
	GroupListResponse    Type = 23
	GetGroupMembers      Type = 24
	GroupMembersResponse Type = 25
	GetUserFriends       Type = 26
	UserFriendsResponse  Type = 27
	// AddFriend (code 28) is the legacy name for AddFriendRequest; spec.md
	// §9 asks that the alias be retired or documented. We document it here
	// and use AddFriendRequest as the single canonical identifier — there is
	// only ever one handler registered under code 28.
	AddFriendRequest        Type = 28
	AddFriend               Type = 28 // legacy alias, same numeric code, do not register a second handler
	AddFriendResponse       Type = 29
	GetChatHistory          Type = 30
	ChatHistoryResponse     Type = 31
	RecallMessage           Type = 32
	RecallMessageResponse   Type = 33
	MarkMessageRead         Type = 34
	MarkMessageReadResponse Type = 35
)

// Status is the convention carried in the "status" field: 0 success, 1
// failure (with an accompanying message/errorMsg field).
type Status int

const (
	StatusOK   Status = 0
	StatusFail Status = 1
)
