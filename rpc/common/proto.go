package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key      string `json:"key,omitempty"`      // Used for: Set, Get, Has, Expire, Delete, Acquire, Release, TTL ops
	ExpireIn uint64 `json:"expireIn,omitempty"` // Used for: Set operations; TTL ops reuse this as the TTL in milliseconds
	DeleteIn uint64 `json:"deleteIn,omitempty"` // Used for: Set, Acquire operations
	Value    []byte `json:"value,omitempty"`    // Used for: Set (request), Get (response), Acquire (response); TTL Remove reuses this as an optional compare value
	IfAbsent bool   `json:"ifAbsent,omitempty"` // Used for: TTL Put - only store if key is not already present
	Default  []byte `json:"default,omitempty"`  // Used for: TTL GetOrDefault's fallback value
	Size     int64  `json:"size,omitempty"`     // Used for: TTL Size response

	// Group fields
	SessionKey  string        `json:"sessionKey,omitempty"`  // Opaque client-chosen handle for a group session, scoped per shard
	MemberID    string        `json:"memberId,omitempty"`    // Used for: Join, Leave, direct Submit
	Ephemeral   bool          `json:"ephemeral,omitempty"`   // Used for: Join - membership does not survive session close
	Dispatch    uint8         `json:"dispatch,omitempty"`    // Used for: Submit - DispatchPolicy for a non-direct send
	Delivery    uint8         `json:"delivery,omitempty"`    // Used for: Submit - DeliveryPolicy
	MessageID   uint64        `json:"messageId,omitempty"`   // Used for: Submit (response), Ack (request)
	PayloadType string        `json:"payloadType,omitempty"` // Used for: Submit - the application message type
	Succeeded   bool          `json:"succeeded,omitempty"`   // Used for: Ack - application-level outcome
	Member      GroupMember   `json:"member,omitempty"`      // Used for: Join response
	Members     []GroupMember `json:"members,omitempty"`     // Used for: Listen response
	Events      []GroupEvent  `json:"events,omitempty"`      // Used for: Drain response

	// Response only fields
	Ok  bool   `json:"ok,omitempty"`  // Used for: Get, Has, Acquire, Release, TTL ContainsKey/IsEmpty/PutIfAbsent responses
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Unused, can be used for additional Adapters
}

// GroupMember is a JSON-friendly projection of a group member, addressed
// over RPC without exposing the wire codec's internal MemberInfo type.
type GroupMember struct {
	MemberID string `json:"memberId"`
	Index    uint64 `json:"index"`
}

// GroupEvent is a single notification drained from a group session's
// queue: a Kind tag plus whichever of the remaining fields that kind uses,
// mirroring lib/rsm/dragonboat.GroupEvent's own "only relevant fields
// populated" shape.
type GroupEvent struct {
	Kind        string      `json:"kind"`
	Member      GroupMember `json:"member,omitempty"`
	MemberID    string      `json:"memberId,omitempty"`
	Term        uint64      `json:"term,omitempty"`
	MessageID   uint64      `json:"messageId,omitempty"`
	PayloadType string      `json:"payloadType,omitempty"`
	Payload     []byte      `json:"payload,omitempty"`
	Succeeded   bool        `json:"succeeded,omitempty"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSetRequest creates a new Set request
func NewSetRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTKVSet,
		Key:     key,
		Value:   value,
	}
}

// NewSetResponse creates a new Set response
func NewSetResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTKVSet,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewSetERequest creates a new SetE request
func NewSetERequest(key string, value []byte, expireIn, deleteIn uint64) *Message {
	return &Message{
		MsgType:  MsgTKVSetE,
		Key:      key,
		Value:    value,
		ExpireIn: expireIn,
		DeleteIn: deleteIn,
	}
}

// NewSetEResponse creates a new SetE response
func NewSetEResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTKVSetE,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewSetEIfUnsetRequest creates a new SetEIfUnset request
func NewSetEIfUnsetRequest(key string, value []byte, expireIn, deleteIn uint64) *Message {
	return &Message{
		MsgType:  MsgTKVSetEIfUnset,
		Key:      key,
		Value:    value,
		ExpireIn: expireIn,
		DeleteIn: deleteIn,
	}
}

// NewSetEIfUnsetResponse creates a new SetEIfUnset response
func NewSetEIfUnsetResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTKVSetEIfUnset,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewExpireRequest creates a new Expire request
func NewExpireRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVExpire,
		Key:     key,
	}
}

// NewExpireResponse creates a new Expire response
func NewExpireResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTKVExpire,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVDelete,
		Key:     key,
	}
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTKVDelete,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVGet,
		Ok:      ok,
		Value:   value,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewHasRequest creates a new Has request
func NewHasRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVHas,
		Key:     key,
	}
}

// NewHasResponse creates a new Has response
func NewHasResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVHas,
		Ok:      ok,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewAcquireRequest creates a new Acquire request
func NewAcquireRequest(key string, deleteIn uint64) *Message {
	return &Message{
		MsgType:  MsgTLCKAcquire,
		Key:      key,
		DeleteIn: deleteIn,
	}
}

// NewAcquireResponse creates a new Acquire response
func NewAcquireResponse(ok bool, value []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTLCKAcquire,
		Ok:      ok,
		Value:   value,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewReleaseRequest creates a new Release request
func NewReleaseRequest(key string, ownerId []byte) *Message {
	return &Message{
		MsgType: MsgTLCKRelease,
		Key:     key,
		Value:   ownerId,
	}
}

// NewReleaseResponse creates a new Release response
func NewReleaseResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTLCKRelease,
		Ok:      ok,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewTTLPutRequest creates a new TTL map Put request. ttlMillis of 0 means
// no expiry; ifAbsent makes the put a no-op when key already exists.
func NewTTLPutRequest(key string, value []byte, ttlMillis uint64, ifAbsent bool) *Message {
	return &Message{MsgType: MsgTTLPut, Key: key, Value: value, ExpireIn: ttlMillis, IfAbsent: ifAbsent}
}

// NewTTLPutResponse creates a new TTL map Put response: Value/Ok carry the
// previous value and whether one existed.
func NewTTLPutResponse(previous []byte, replaced bool, err error) *Message {
	msg := &Message{MsgType: MsgTTLPut, Value: previous, Ok: replaced}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewTTLGetRequest creates a new TTL map Get request.
func NewTTLGetRequest(key string) *Message {
	return &Message{MsgType: MsgTTLGet, Key: key}
}

// NewTTLGetResponse creates a new TTL map Get response.
func NewTTLGetResponse(value []byte, ok bool, err error) *Message {
	msg := &Message{MsgType: MsgTTLGet, Value: value, Ok: ok}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewTTLGetOrDefaultRequest creates a new TTL map GetOrDefault request.
func NewTTLGetOrDefaultRequest(key string, def []byte) *Message {
	return &Message{MsgType: MsgTTLGetOrDefault, Key: key, Default: def}
}

// NewTTLGetOrDefaultResponse creates a new TTL map GetOrDefault response.
func NewTTLGetOrDefaultResponse(value []byte, err error) *Message {
	msg := &Message{MsgType: MsgTTLGetOrDefault, Value: value}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewTTLContainsKeyRequest creates a new TTL map ContainsKey request.
func NewTTLContainsKeyRequest(key string) *Message {
	return &Message{MsgType: MsgTTLContainsKey, Key: key}
}

// NewTTLContainsKeyResponse creates a new TTL map ContainsKey response.
func NewTTLContainsKeyResponse(ok bool, err error) *Message {
	msg := &Message{MsgType: MsgTTLContainsKey, Ok: ok}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewTTLRemoveRequest creates a new TTL map Remove request. A nil
// compareValue removes the key unconditionally.
func NewTTLRemoveRequest(key string, compareValue []byte) *Message {
	return &Message{MsgType: MsgTTLRemove, Key: key, Value: compareValue}
}

// NewTTLRemoveResponse creates a new TTL map Remove response.
func NewTTLRemoveResponse(previous []byte, removed bool, err error) *Message {
	msg := &Message{MsgType: MsgTTLRemove, Value: previous, Ok: removed}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewTTLSizeRequest creates a new TTL map Size request.
func NewTTLSizeRequest() *Message {
	return &Message{MsgType: MsgTTLSize}
}

// NewTTLSizeResponse creates a new TTL map Size response.
func NewTTLSizeResponse(size int64, err error) *Message {
	msg := &Message{MsgType: MsgTTLSize, Size: size}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewTTLIsEmptyRequest creates a new TTL map IsEmpty request.
func NewTTLIsEmptyRequest() *Message {
	return &Message{MsgType: MsgTTLIsEmpty}
}

// NewTTLIsEmptyResponse creates a new TTL map IsEmpty response.
func NewTTLIsEmptyResponse(ok bool, err error) *Message {
	msg := &Message{MsgType: MsgTTLIsEmpty, Ok: ok}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewTTLClearRequest creates a new TTL map Clear request.
func NewTTLClearRequest() *Message {
	return &Message{MsgType: MsgTTLClear}
}

// NewTTLClearResponse creates a new TTL map Clear response.
func NewTTLClearResponse(err error) *Message {
	msg := &Message{MsgType: MsgTTLClear}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGroupJoinRequest creates a new group Join request.
func NewGroupJoinRequest(sessionKey, memberID string, ephemeral bool) *Message {
	return &Message{MsgType: MsgGroupJoin, SessionKey: sessionKey, MemberID: memberID, Ephemeral: ephemeral}
}

// NewGroupJoinResponse creates a new group Join response.
func NewGroupJoinResponse(member GroupMember, err error) *Message {
	msg := &Message{MsgType: MsgGroupJoin, Member: member}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGroupLeaveRequest creates a new group Leave request.
func NewGroupLeaveRequest(sessionKey, memberID string) *Message {
	return &Message{MsgType: MsgGroupLeave, SessionKey: sessionKey, MemberID: memberID}
}

// NewGroupLeaveResponse creates a new group Leave response.
func NewGroupLeaveResponse(err error) *Message {
	msg := &Message{MsgType: MsgGroupLeave}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGroupListenRequest creates a new group Listen request.
func NewGroupListenRequest(sessionKey string) *Message {
	return &Message{MsgType: MsgGroupListen, SessionKey: sessionKey}
}

// NewGroupListenResponse creates a new group Listen response.
func NewGroupListenResponse(members []GroupMember, err error) *Message {
	msg := &Message{MsgType: MsgGroupListen, Members: members}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGroupSubmitRequest creates a new group Submit request. A blank
// memberID means non-direct, routed per dispatch instead.
func NewGroupSubmitRequest(sessionKey, memberID, payloadType string, body []byte, dispatch, delivery uint8) *Message {
	return &Message{
		MsgType:     MsgGroupSubmit,
		SessionKey:  sessionKey,
		MemberID:    memberID,
		PayloadType: payloadType,
		Value:       body,
		Dispatch:    dispatch,
		Delivery:    delivery,
	}
}

// NewGroupSubmitResponse creates a new group Submit response.
func NewGroupSubmitResponse(messageID uint64, err error) *Message {
	msg := &Message{MsgType: MsgGroupSubmit, MessageID: messageID}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGroupAckRequest creates a new group Ack request.
func NewGroupAckRequest(sessionKey string, messageID uint64, succeeded bool) *Message {
	return &Message{MsgType: MsgGroupAck, SessionKey: sessionKey, MessageID: messageID, Succeeded: succeeded}
}

// NewGroupAckResponse creates a new group Ack response.
func NewGroupAckResponse(err error) *Message {
	msg := &Message{MsgType: MsgGroupAck}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGroupDrainRequest creates a new group Drain request.
func NewGroupDrainRequest(sessionKey string) *Message {
	return &Message{MsgType: MsgGroupDrain, SessionKey: sessionKey}
}

// NewGroupDrainResponse creates a new group Drain response.
func NewGroupDrainResponse(events []GroupEvent, err error) *Message {
	msg := &Message{MsgType: MsgGroupDrain, Events: events}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGroupSessionCloseRequest creates a new group session-close request.
func NewGroupSessionCloseRequest(sessionKey string) *Message {
	return &Message{MsgType: MsgGroupSessionClose, SessionKey: sessionKey}
}

// NewGroupSessionCloseResponse creates a new group session-close response.
func NewGroupSessionCloseResponse(err error) *Message {
	msg := &Message{MsgType: MsgGroupSessionClose}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
}

// NewCustomResponse creates a new Custom response
func NewCustomResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTKVSet:
		return "set"
	case MsgTKVSetE:
		return "setE"
	case MsgTKVSetEIfUnset:
		return "setEIfUnset"
	case MsgTKVExpire:
		return "expire"
	case MsgTKVDelete:
		return "delete"
	case MsgTKVGet:
		return "get"
	case MsgTKVHas:
		return "has"
	case MsgTLCKAcquire:
		return "acquire"
	case MsgTLCKRelease:
		return "release"
	case MsgTTLPut:
		return "ttlPut"
	case MsgTTLGet:
		return "ttlGet"
	case MsgTTLGetOrDefault:
		return "ttlGetOrDefault"
	case MsgTTLContainsKey:
		return "ttlContainsKey"
	case MsgTTLRemove:
		return "ttlRemove"
	case MsgTTLSize:
		return "ttlSize"
	case MsgTTLIsEmpty:
		return "ttlIsEmpty"
	case MsgTTLClear:
		return "ttlClear"
	case MsgGroupJoin:
		return "groupJoin"
	case MsgGroupLeave:
		return "groupLeave"
	case MsgGroupListen:
		return "groupListen"
	case MsgGroupSubmit:
		return "groupSubmit"
	case MsgGroupAck:
		return "groupAck"
	case MsgGroupDrain:
		return "groupDrain"
	case MsgGroupSessionClose:
		return "groupSessionClose"
	case MsgTCustom:
		return "custom"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "set":
		*t = MsgTKVSet
	case "setE":
		*t = MsgTKVSetE
	case "setEIfUnset":
		*t = MsgTKVSetEIfUnset
	case "expire":
		*t = MsgTKVExpire
	case "delete":
		*t = MsgTKVDelete
	case "get":
		*t = MsgTKVGet
	case "has":
		*t = MsgTKVHas
	case "acquire":
		*t = MsgTLCKAcquire
	case "release":
		*t = MsgTLCKRelease
	case "ttlPut":
		*t = MsgTTLPut
	case "ttlGet":
		*t = MsgTTLGet
	case "ttlGetOrDefault":
		*t = MsgTTLGetOrDefault
	case "ttlContainsKey":
		*t = MsgTTLContainsKey
	case "ttlRemove":
		*t = MsgTTLRemove
	case "ttlSize":
		*t = MsgTTLSize
	case "ttlIsEmpty":
		*t = MsgTTLIsEmpty
	case "ttlClear":
		*t = MsgTTLClear
	case "groupJoin":
		*t = MsgGroupJoin
	case "groupLeave":
		*t = MsgGroupLeave
	case "groupListen":
		*t = MsgGroupListen
	case "groupSubmit":
		*t = MsgGroupSubmit
	case "groupAck":
		*t = MsgGroupAck
	case "groupDrain":
		*t = MsgGroupDrain
	case "groupSessionClose":
		*t = MsgGroupSessionClose
	case "custom":
		*t = MsgTCustom
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTKVSet         // Set a key-value pair
	MsgTKVSetE        // Set a key-value pair with expiration
	MsgTKVSetEIfUnset // Set a key-value pair if not already set
	MsgTKVExpire      // Expire a key
	MsgTKVDelete      // Delete a key-value pair
	MsgTKVGet         // Get a value by key
	MsgTKVHas         // Check if a key exists

	// ILockProvider operations

	MsgTLCKAcquire // Acquire a lock
	MsgTLCKRelease // Release a lock

	// ITTLMap operations

	MsgTTLPut          // Put a value with a TTL (request carries IfAbsent)
	MsgTTLGet          // Get a value by key
	MsgTTLGetOrDefault // Get a value by key, or Default if absent
	MsgTTLContainsKey  // Check whether a key is present
	MsgTTLRemove       // Remove a key, optionally only if Value matches
	MsgTTLSize         // Number of stored entries, including expired ones not yet evicted
	MsgTTLIsEmpty      // Whether the map stores no entries (expired ones not yet evicted count)
	MsgTTLClear        // Remove every entry

	// IGroup operations

	MsgGroupJoin         // Join the group as MemberID
	MsgGroupLeave        // Leave the group
	MsgGroupListen       // Register as a listener, returns current members
	MsgGroupSubmit       // Send a message to a member or dispatch it across the group
	MsgGroupAck          // Acknowledge a delivered message
	MsgGroupDrain        // Drain queued events for this session
	MsgGroupSessionClose // Close this session, releasing any members/listeners it owns

	// Custom operations

	MsgTCustom // Custom operation type
)
