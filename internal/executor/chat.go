package executor

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Chat defaults. The brainstorm assistant is tool-less and short-lived,
// so its ceilings are much tighter than the implementation runs'.
const (
	DefaultChunkSize    = 100
	DefaultChunkTimeout = 30 * time.Second
	DefaultTotalTimeout = 120 * time.Second
)

// ChatMessage is one turn of a brainstorm conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildChatPrompt rebuilds the conversation transcript into a single
// prompt. The child is stateless between turns; the transcript is the
// only memory.
func BuildChatPrompt(history []ChatMessage, userMessage string) string {
	var b strings.Builder
	b.WriteString("You are a brainstorming partner for software features. ")
	b.WriteString("Respond conversationally. Do not read or write any files.\n\n")
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("[user] " + userMessage + "\n")
	return b.String()
}

// Chunk is one piece of a streamed chat response. TimedOut marks the
// final chunk of a turn that hit a ceiling; the child has been killed.
type Chunk struct {
	Text     string
	TimedOut bool
}

// ChunkStreamer reads a child's stdout in fixed-size byte chunks with a
// per-chunk timeout and an overall per-turn ceiling.
type ChunkStreamer struct {
	ChunkSize    int
	ChunkTimeout time.Duration
	TotalTimeout time.Duration
}

// NewChunkStreamer creates a streamer with the default limits.
func NewChunkStreamer() *ChunkStreamer {
	return &ChunkStreamer{
		ChunkSize:    DefaultChunkSize,
		ChunkTimeout: DefaultChunkTimeout,
		TotalTimeout: DefaultTotalTimeout,
	}
}

// Stream reads proc's output until EOF or a timeout. The returned
// channel is closed after the final chunk; on either ceiling the child
// is killed and the last chunk carries a timeout notice.
func (s *ChunkStreamer) Stream(ctx context.Context, proc Process) <-chan Chunk {
	size := s.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunkTimeout := s.ChunkTimeout
	if chunkTimeout <= 0 {
		chunkTimeout = DefaultChunkTimeout
	}
	totalTimeout := s.TotalTimeout
	if totalTimeout <= 0 {
		totalTimeout = DefaultTotalTimeout
	}

	out := make(chan Chunk, 4)

	type readResult struct {
		text string
		err  error
	}
	reads := make(chan readResult)
	quit := make(chan struct{})
	go func() {
		defer close(reads)
		buf := make([]byte, size)
		output := proc.Output()
		for {
			n, err := output.Read(buf)
			if n > 0 {
				select {
				case reads <- readResult{text: string(buf[:n])}:
				case <-quit:
					return
				}
			}
			if err != nil {
				select {
				case reads <- readResult{err: err}:
				case <-quit:
				}
				return
			}
		}
	}()

	go func() {
		defer close(out)
		defer close(quit)
		deadline := time.NewTimer(totalTimeout)
		defer deadline.Stop()

		for {
			chunkTimer := time.NewTimer(chunkTimeout)
			select {
			case r, ok := <-reads:
				chunkTimer.Stop()
				if !ok || r.err != nil {
					_ = proc.Wait()
					return
				}
				out <- Chunk{Text: r.text}
			case <-chunkTimer.C:
				out <- Chunk{Text: fmt.Sprintf("\n[no output for %s; response cut off]", chunkTimeout), TimedOut: true}
				_ = proc.Kill()
				_ = proc.Wait()
				return
			case <-deadline.C:
				chunkTimer.Stop()
				out <- Chunk{Text: fmt.Sprintf("\n[response exceeded %s; cut off]", totalTimeout), TimedOut: true}
				_ = proc.Kill()
				_ = proc.Wait()
				return
			case <-ctx.Done():
				chunkTimer.Stop()
				_ = proc.Kill()
				_ = proc.Wait()
				return
			}
		}
	}()

	return out
}
