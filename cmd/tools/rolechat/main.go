// Command rolechat 在终端里跑一次完整的反向人格会话。
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zhouzirui/mirror-persona/backend/internal/analysis/attribute"
	"github.com/zhouzirui/mirror-persona/backend/internal/config"
	chathandler "github.com/zhouzirui/mirror-persona/backend/internal/handler/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/logging"
	"github.com/zhouzirui/mirror-persona/backend/internal/model/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/model/persona"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/session"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/vision"
)

type options struct {
	image   string
	emotion string
	gender  string
	name    string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "rolechat",
		Short: "Chat with the opposite of yourself",
		Long: `rolechat asks for a model API key, optionally reads a photo to detect your
emotion and gender, creates the opposite character and starts a chat.

Commands inside the chat:
  /profile  print the character description
  /end      end the session and clear the API key`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.image, "image", "", "photo to analyze (jpeg, png, gif, webp or bmp)")
	flags.StringVar(&opts.emotion, "emotion", "", "your emotion, used when the photo does not tell: "+strings.Join(attribute.Emotions(), ", "))
	flags.StringVar(&opts.gender, "gender", "", "your gender, used when the photo does not tell: "+strings.Join(attribute.Genders(), ", "))
	flags.StringVar(&opts.name, "name", "", "character name (default from CHARACTER_DEFAULT_NAME)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "print service logs to stderr")
	return cmd
}

func run(ctx context.Context, opts *options, stdin io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := zerolog.Nop()
	if opts.verbose {
		cfg.Log.Format = "console"
		logger = logging.NewWithWriter(cfg.Log, os.Stderr)
	}

	factory, err := llm.NewFactory(cfg.AI, logger)
	if err != nil {
		return err
	}
	sessions := session.NewManager(factory, session.Options{
		HistoryWindow: cfg.Session.HistoryWindow,
		DefaultName:   cfg.Session.DefaultName,
		Vision: vision.Config{
			MaxImageBytes: cfg.Session.MaxImageBytes,
			MaxPixels:     cfg.Session.MaxImagePixels,
			MaxDimension:  cfg.Session.MaxImageSide,
			JPEGQuality:   cfg.Session.JPEGQuality,
		},
	}, logger)
	defer sessions.Shutdown()

	in := bufio.NewReader(stdin)
	apiKey, err := readAPIKey(stdin, in, out, cfg.AI.Provider)
	if err != nil {
		return err
	}

	sess, err := sessions.Create(ctx, apiKey)
	if err != nil {
		return err
	}

	detected := persona.UnknownAnalysis()
	if opts.image != "" {
		if detected, err = analyzePhoto(ctx, sess, opts.image, out); err != nil {
			return err
		}
	}

	sel, err := chooseMissing(in, out, session.Selection{Name: opts.name, Emotion: opts.emotion, Gender: opts.gender}, detected)
	if err != nil {
		return err
	}
	spec, err := sess.Preview(sel)
	if errors.Is(err, session.ErrAttributeRequired) {
		return fmt.Errorf("%w: --emotion must be one of %s and --gender one of %s", err,
			strings.Join(attribute.Emotions(), ", "), strings.Join(attribute.Genders(), ", "))
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, spec.Summary())
	fmt.Fprintln(out, "Creating character...")

	profile, err := sess.CreateCharacter(ctx, sel)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s\n\n%s\n\n", chat.CreationNotice, profile.ProfileText)

	return chatLoop(ctx, sessions, sess, in, out)
}

// readAPIKey 在终端上隐藏输入；管道输入时按行读取。
func readAPIKey(stdin io.Reader, in *bufio.Reader, out io.Writer, provider config.Provider) (string, error) {
	fmt.Fprintf(out, "%s API key: ", provider)

	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read api key: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read api key: %w", err)
	}
	fmt.Fprintln(out)
	return strings.TrimSpace(line), nil
}

func analyzePhoto(ctx context.Context, sess *session.Session, path string, out io.Writer) (persona.Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return persona.Analysis{}, fmt.Errorf("read image: %w", err)
	}

	fmt.Fprintln(out, "Analyzing photo...")
	outcome, err := sess.AnalyzeImage(ctx, data)
	if err != nil {
		return persona.Analysis{}, err
	}
	fmt.Fprintf(out, "Detected emotion: %s, gender: %s\n", outcome.Analysis.DominantEmotion, outcome.Analysis.Gender)
	if outcome.Warning != "" {
		fmt.Fprintln(out, outcome.Warning)
	}
	return outcome.Analysis, nil
}

// chooseMissing 对既没有命令行参数、也没识别出来的属性，让用户手动选择。
func chooseMissing(in *bufio.Reader, out io.Writer, sel session.Selection, detected persona.Analysis) (session.Selection, error) {
	var err error
	if strings.TrimSpace(sel.Emotion) == "" && !detected.EmotionKnown() {
		if sel.Emotion, err = promptChoice(in, out, "your emotion", attribute.Emotions(), attribute.IsEmotion); err != nil {
			return sel, err
		}
	}
	if strings.TrimSpace(sel.Gender) == "" && !detected.GenderKnown() {
		if sel.Gender, err = promptChoice(in, out, "your gender", attribute.Genders(), attribute.IsGender); err != nil {
			return sel, err
		}
	}
	return sel, nil
}

// promptChoice 接受序号或选项原文，输入无效时重新询问。
func promptChoice(in *bufio.Reader, out io.Writer, label string, choices []string, valid func(string) bool) (string, error) {
	for {
		fmt.Fprintf(out, "Choose %s:\n", label)
		for i, choice := range choices {
			fmt.Fprintf(out, "  %d) %s\n", i+1, choice)
		}
		fmt.Fprint(out, "> ")

		line, err := in.ReadString('\n')
		if answer := strings.TrimSpace(line); answer != "" {
			if n, convErr := strconv.Atoi(answer); convErr == nil && n >= 1 && n <= len(choices) {
				return choices[n-1], nil
			}
			if valid(answer) {
				return answer, nil
			}
			fmt.Fprintf(out, "%q is not one of the options.\n", answer)
		}
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("no choice for %s: %w", label, session.ErrAttributeRequired)
		}
		if err != nil {
			return "", fmt.Errorf("read choice: %w", err)
		}
	}
}

// chatLoop 每行读一条消息，直到 /end 或 EOF。
func chatLoop(ctx context.Context, sessions *session.Manager, sess *session.Session, in *bufio.Reader, out io.Writer) error {
	name := "Character"
	if profile, ok := sess.Profile(); ok {
		name = profile.Name
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/end":
			if err := sessions.End(sess.ID()); err != nil {
				return err
			}
			fmt.Fprintln(out, chathandler.EndedMessage)
			return nil
		case "/profile":
			if profile, ok := sess.Profile(); ok {
				fmt.Fprintln(out, profile.ProfileText)
			}
			continue
		}

		fmt.Fprintf(out, "%s is typing...\n", name)
		exchange, err := sess.Submit(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", name, exchange.Reply.Text)
		if exchange.Failure != "" {
			fmt.Fprintf(out, "(model error: %s)\n", exchange.Failure)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	// EOF 也要清掉会话和密钥。
	if err := sessions.End(sess.ID()); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return err
	}
	fmt.Fprintln(out, chathandler.EndedMessage)
	return nil
}
