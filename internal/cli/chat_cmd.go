package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/peerline/peerline/internal/call"
	"github.com/peerline/peerline/internal/media"
	"github.com/peerline/peerline/internal/session"
)

var (
	chatDir       string
	chatAudioFile string
	chatVideoFile string
	chatCompat    bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "register with the relay and chat interactively",
	Long: `chat registers a fresh endpoint id with the rendezvous relay and
drops into an interactive prompt. Plain lines go to the connected peer
as chat messages, lines starting with / are commands. Type /help for
the list.

Calls stream from --audio-file (ogg) and --video-file (ivf) when
given, otherwise a built-in synthetic source is used.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runChat()
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatDir, "dir", ".", "directory for received files")
	chatCmd.Flags().StringVar(&chatAudioFile, "audio-file", "", "ogg opus file streamed as the call audio source")
	chatCmd.Flags().StringVar(&chatVideoFile, "video-file", "", "ivf vp8 file streamed as the call video source")
	chatCmd.Flags().BoolVar(&chatCompat, "compat", false, "send files as single frames for older peers")
}

func chatDevice() media.Device {
	if chatAudioFile != "" || chatVideoFile != "" {
		return &media.FileDevice{AudioPath: chatAudioFile, VideoPath: chatVideoFile}
	}
	return media.NewSyntheticDevice()
}

func runChat() {
	log := newLogger()

	cfg := baseConfig()
	cfg.ChunkedTransfers = !chatCompat
	cfg.Device = chatDevice()

	sess := session.New(cfg)
	defer sess.Close()

	if err := sess.Register(context.Background()); err != nil {
		log.Error("Failed to register with relay", "error", err)
		os.Exit(1)
	}

	fmt.Printf("your id: %s\n", sess.ID())
	fmt.Println("share it with a peer, or /connect <ID> to reach one. /help lists commands.")

	sub, unsub := sess.Log().Subscribe()
	defer unsub()
	go func() {
		for m := range sub {
			printMessage(m, chatDir)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		_ = sess.Close()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if !dispatch(sess, line) {
				return
			}
			continue
		}
		if err := sess.SendText(line); err != nil {
			fmt.Println("error:", err)
		}
	}
}

// dispatch runs one slash command. It returns false when the loop
// should exit.
func dispatch(sess *session.Session, line string) bool {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/help":
		printHelp()
	case "/connect":
		if len(args) != 1 {
			fmt.Println("usage: /connect <ID>")
			return true
		}
		// Connect blocks for up to the handshake timeout; keep the
		// prompt responsive meanwhile.
		go func(id string) {
			if err := sess.Connect(context.Background(), id); err != nil {
				fmt.Println("error:", err)
			}
		}(args[0])
	case "/send":
		if len(args) != 1 {
			fmt.Println("usage: /send <path>")
			return true
		}
		go sendPath(sess, args[0])
	case "/call":
		mode := call.ModeAudio
		if len(args) > 0 {
			m, err := call.ParseMode(args[0])
			if err != nil {
				fmt.Println("usage: /call [audio|video]")
				return true
			}
			mode = m
		}
		go func() {
			if err := sess.StartCall(context.Background(), mode); err != nil {
				fmt.Println("error:", err)
			}
		}()
	case "/answer":
		go func() {
			if err := sess.AnswerCall(context.Background()); err != nil {
				fmt.Println("error:", err)
			}
		}()
	case "/reject":
		if err := sess.RejectCall(); err != nil {
			fmt.Println("error:", err)
		}
	case "/hangup":
		if err := sess.HangUp(); err != nil {
			fmt.Println("error:", err)
		}
	case "/mute":
		muted, err := sess.ToggleMute()
		switch {
		case err != nil:
			fmt.Println("error:", err)
		case muted:
			fmt.Println("microphone muted")
		default:
			fmt.Println("microphone live")
		}
	case "/camera":
		off, err := sess.ToggleCamera()
		switch {
		case err != nil:
			fmt.Println("error:", err)
		case off:
			fmt.Println("camera off")
		default:
			fmt.Println("camera on")
		}
	case "/status":
		printStatus(sess)
	case "/quit":
		return false
	default:
		fmt.Printf("unknown command %s, /help lists commands\n", name)
	}
	return true
}

func sendPath(sess *session.Session, path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer f.Close()

	if err := sess.SendFile(context.Background(), filepath.Base(path), f); err != nil {
		fmt.Println("error:", err)
	}
}

func printStatus(sess *session.Session) {
	fmt.Printf("id: %s\n", sess.ID())
	if remote := sess.RemoteID(); remote != "" {
		fmt.Printf("connection: %s to %s\n", sess.Status(), remote)
	} else {
		fmt.Printf("connection: %s\n", sess.Status())
	}

	c := sess.Call()
	switch c.State() {
	case call.StateCalling:
		fmt.Printf("call: calling %s (%s)\n", c.Peer(), c.Mode())
	case call.StateIncoming:
		fmt.Printf("call: incoming from %s (%s), /answer or /reject\n", c.Peer(), c.Mode())
	case call.StateActive:
		fmt.Printf("call: active with %s (%s, %s)\n", c.Peer(), c.Mode(), c.Elapsed().Round(time.Second))
	default:
		fmt.Println("call: none")
	}
}

func printHelp() {
	fmt.Print(`commands:
  /connect <ID>        connect to a registered peer
  /send <path>         send a file to the connected peer
  /call [audio|video]  start a call, audio is the default
  /answer              accept the ringing call
  /reject              decline the ringing call
  /hangup              end the current call
  /mute                toggle the microphone
  /camera              toggle the camera on a video call
  /status              show connection and call state
  /quit                exit
plain lines go to the connected peer as chat messages
`)
}
