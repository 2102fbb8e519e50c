package protocol

// HELLO (client -> feed)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	ViewRadius      int    `json:"view_radius,omitempty"`
	WorldPreference string `json:"world_preference,omitempty"`
}

// WELCOME (feed -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	WorldID         string `json:"world_id"`
	Seed            int64  `json:"seed"`
	SeaLevel        int    `json:"sea_level"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CHUNK_DATA carries a whole column. Data is the section RLE payload and
// Mask has bit i set when section i is present in it.
type ChunkDataMsg struct {
	Type string `json:"type"`
	CX   int    `json:"cx"`
	CZ   int    `json:"cz"`
	Mask uint16 `json:"mask"`
	Data string `json:"data"`
}

type ChunkUnloadMsg struct {
	Type string `json:"type"`
	CX   int    `json:"cx"`
	CZ   int    `json:"cz"`
}

type BlockChangeMsg struct {
	Type  string `json:"type"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Block uint16 `json:"block"`
}

// BlockRecord is chunk-local in MULTI_BLOCK_CHANGE.
type BlockRecord struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Block uint16 `json:"block"`
}

type MultiBlockChangeMsg struct {
	Type    string        `json:"type"`
	CX      int           `json:"cx"`
	CZ      int           `json:"cz"`
	Records []BlockRecord `json:"records"`
}

type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// EXPLOSION lists the absolute positions it destroyed.
type ExplosionMsg struct {
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Strength float64 `json:"strength"`
	Records  []Pos   `json:"records"`
}

type PositionMsg struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	Yaw  float64 `json:"yaw"`
}

type RespawnMsg struct {
	Type    string `json:"type"`
	WorldID string `json:"world_id"`
}
