package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const Version = "0.1"

// Message types.
const (
	TypeHello            = "HELLO"
	TypeWelcome          = "WELCOME"
	TypeError            = "ERROR"
	TypeChunkData        = "CHUNK_DATA"
	TypeChunkUnload      = "CHUNK_UNLOAD"
	TypeBlockChange      = "BLOCK_CHANGE"
	TypeMultiBlockChange = "MULTI_BLOCK_CHANGE"
	TypeExplosion        = "EXPLOSION"
	TypePosition         = "POSITION"
	TypeRespawn          = "RESPAWN"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrVersion     = errors.New("incompatible protocol version")
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Compatible reports whether a peer speaking v can be understood. Only the
// major component has to match; an empty version is accepted.
func Compatible(v string) bool {
	if v == "" {
		return true
	}
	major, _, _ := strings.Cut(v, ".")
	ours, _, _ := strings.Cut(Version, ".")
	return major == ours
}

// Decode parses a feed message into its concrete type.
func Decode(b []byte) (any, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, err
	}
	if !Compatible(base.ProtocolVersion) {
		return nil, fmt.Errorf("%w: %q", ErrVersion, base.ProtocolVersion)
	}
	var v any
	switch base.Type {
	case TypeHello:
		v = &HelloMsg{}
	case TypeWelcome:
		v = &WelcomeMsg{}
	case TypeError:
		v = &ErrorMsg{}
	case TypeChunkData:
		v = &ChunkDataMsg{}
	case TypeChunkUnload:
		v = &ChunkUnloadMsg{}
	case TypeBlockChange:
		v = &BlockChangeMsg{}
	case TypeMultiBlockChange:
		v = &MultiBlockChangeMsg{}
	case TypeExplosion:
		v = &ExplosionMsg{}
	case TypePosition:
		v = &PositionMsg{}
	case TypeRespawn:
		v = &RespawnMsg{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Type, err)
	}
	return v, nil
}
