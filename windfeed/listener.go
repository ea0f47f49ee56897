package windfeed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
)

// Listener accepts wind vectors from remote nodes over a line protocol:
//
//	W <speed> <direction>   add a sample      -> RPRT 0
//	p                       print last sample -> <speed>\n<direction>\n
//
// Malformed commands are answered with RPRT -22.
type Listener struct {
	Buffer *Buffer
}

func (l *Listener) Listen(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing wind feed socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("failed to accept: %v", err)
				}
				continue
			}
			go l.handle(conn)
		}
	}()
	return ln.Addr(), nil
}

func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()
	log.Printf("accepted connection from %v", conn.RemoteAddr())
	if err := l.serve(conn); err != nil {
		log.Printf("reading from %v: %v", conn.RemoteAddr(), err)
	}
}

func (l *Listener) serve(rw io.ReadWriter) error {
	scanner := bufio.NewScanner(rw)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		rprt := 0
		switch fields[0] {
		case "W":
			if len(fields) != 3 {
				rprt = -22
				break
			}
			speed, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				rprt = -22
				break
			}
			dir, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				rprt = -22
				break
			}
			l.Buffer.Add(Sample{Speed: speed, Direction: dir})
		case "p":
			s, ok := l.Buffer.Last()
			if !ok {
				rprt = -1
				break
			}
			fmt.Fprintf(rw, "%.6f\n%.6f\n", s.Speed, s.Direction)
			continue
		default:
			rprt = -22
		}
		fmt.Fprintf(rw, "RPRT %d\n", rprt)
	}
	return scanner.Err()
}
