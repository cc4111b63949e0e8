package protocol

// Tag identifies the kind of a message. The set is closed: every value is a
// row in the tag table below, and nothing downstream of Decode looks at the
// raw tag character again.
type Tag uint8

const (
	TagInvalid Tag = iota

	// Client to server requests.
	TagNickname
	TagJoinExisting
	TagJoinNew
	TagPutNumber

	// Server to client replies and pushes.
	TagSessionsList
	TagWaiting
	TagMoveResult
	TagGameOver
	TagTable
	TagNotify
	TagNotOK
)

// Direction tells which endpoint originates a tag.
type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

// Class tells how a receiving duplex endpoint routes a tag.
type Class int

const (
	// ClassRequest is only ever received by the server.
	ClassRequest Class = iota
	// ClassReply answers the single outstanding synchronous request.
	ClassReply
	// ClassPush is an unsolicited notification.
	ClassPush
)

type tagDef struct {
	tag          Tag
	wire         byte
	name         string
	direction    Direction
	class        Class
	freeText     bool
	maxFieldSeps int
}

var tagTable = []tagDef{
	{TagNickname, 'a', "nickname-request", ClientToServer, ClassRequest, false, 0},
	{TagJoinExisting, 'b', "join-existing", ClientToServer, ClassRequest, false, 0},
	{TagJoinNew, 'c', "join-new", ClientToServer, ClassRequest, false, 1},
	{TagPutNumber, 'd', "put-number", ClientToServer, ClassRequest, false, 0},
	{TagSessionsList, '0', "sessions-list", ServerToClient, ClassReply, true, 0},
	{TagWaiting, '2', "waiting", ServerToClient, ClassReply, true, 0},
	{TagMoveResult, '3', "move-result", ServerToClient, ClassReply, true, 0},
	{TagGameOver, '4', "game-over", ServerToClient, ClassPush, true, 0},
	{TagTable, '5', "table", ServerToClient, ClassReply, true, 0},
	{TagNotify, '6', "notify", ServerToClient, ClassPush, true, 0},
	{TagNotOK, '9', "not-ok", ServerToClient, ClassReply, true, 0},
}

var (
	byTag  = make(map[Tag]tagDef, len(tagTable))
	byWire = make(map[byte]tagDef, len(tagTable))
)

func init() {
	for _, def := range tagTable {
		byTag[def.tag] = def
		byWire[def.wire] = def
	}
}

func lookup(t Tag) (tagDef, bool) {
	def, ok := byTag[t]
	return def, ok
}

func lookupWire(b byte) (tagDef, bool) {
	def, ok := byWire[b]
	return def, ok
}

// String returns the tag's descriptive name.
func (t Tag) String() string {
	if def, ok := lookup(t); ok {
		return def.name
	}

	return "invalid"
}

// Wire returns the single character that carries the tag on the wire, or 0
// for an unknown tag.
func (t Tag) Wire() byte {
	return byTag[t].wire
}

// Direction returns which endpoint sends the tag.
func (t Tag) Direction() Direction {
	return byTag[t].direction
}

// Class returns how a duplex client routes the tag.
func (t Tag) Class() Class {
	return byTag[t].class
}

// IsReply reports whether the tag answers a synchronous request.
func (t Tag) IsReply() bool {
	def, ok := lookup(t)
	return ok && def.class == ClassReply
}

// IsPush reports whether the tag is an unsolicited notification.
func (t Tag) IsPush() bool {
	def, ok := lookup(t)
	return ok && def.class == ClassPush
}
