package relay

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"

	"github.com/natefinch/lumberjack"
)

const (
	arrowUp   = '>' // client → server
	arrowDown = '<' // server → client
)

// packetLog appends one line per relayed packet:
//
//	<arrow><address> <length> <hex plaintext>
type packetLog struct {
	w io.WriteCloser
}

// openPacketLog opens path for appending, rotating at maxSize megabytes
// (0 keeps the lumberjack default).
func openPacketLog(path string, maxSize int) *packetLog {
	return &packetLog{w: &lumberjack.Logger{
		Filename: path,
		MaxSize:  maxSize,
	}}
}

func (l *packetLog) write(arrow byte, addr net.Addr, data []byte) error {
	_, err := fmt.Fprintf(l.w, "%c%s %d %s\n", arrow, addr, len(data), hex.EncodeToString(data))
	return err
}

func (l *packetLog) Close() error {
	return l.w.Close()
}
