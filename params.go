package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/exp/slices"
)

type paramsType struct {
	BotToken string

	AllowedUserIDs  []int64
	AllowedGroupIDs []int64

	Engine    string
	ModelType string
	ModelDir  string
	Threads   int

	STTBin string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	WorkDir     string
	MaxFileSize int64

	LogLevel string
}

var params paramsType

func (p *paramsType) modelFilePath() string {
	return filepath.Join(p.ModelDir, "ggml-"+p.ModelType+".bin")
}

func parseIDList(s, what string) (ids []int64, err error) {
	for _, idStr := range strings.Split(s, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s contains invalid ID: %s", what, idStr)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Init parses the command line and fills the gaps from the environment. Flags
// always win over environment variables.
func (p *paramsType) Init(args []string) error {
	fs := flag.NewFlagSet("whisper-transcribe-telegram-bot", flag.ContinueOnError)
	envFile := fs.StringP("env", "e", ".env", "env file path")
	fs.StringVar(&p.BotToken, "bot-token", "", "telegram bot token")
	var allowedUserIDs, allowedGroupIDs string
	fs.StringVar(&allowedUserIDs, "allowed-user-ids", "", "allowed telegram user ids, everyone is allowed if empty")
	fs.StringVar(&allowedGroupIDs, "allowed-group-ids", "", "allowed telegram group ids, every group is allowed if empty")
	fs.StringVar(&p.Engine, "engine", "", "speech to text engine (whisper, cli, openai), "+
		"defaults to "+string(defaultEngine)+", whisper needs a build with -tags whisper")
	fs.StringVarP(&p.ModelType, "model", "m", "", "whisper model type (tiny, base, small, medium, large)")
	fs.StringVar(&p.ModelDir, "model-dir", "", "directory of the ggml whisper model files")
	fs.IntVar(&p.Threads, "threads", 0, "inference threads, number of CPUs if 0")
	fs.StringVar(&p.STTBin, "stt-bin", "", "path to the whisper.cpp cli binary")
	fs.StringVar(&p.WorkDir, "work-dir", "", "directory for temporary audio files")
	fs.Int64Var(&p.MaxFileSize, "max-file-size", -1, "max attachment size in bytes, 0 disables the check")
	fs.StringVarP(&p.LogLevel, "log", "l", "", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// A missing env file is fine, the environment may already be set.
	_ = godotenv.Load(*envFile)

	if p.BotToken == "" {
		p.BotToken = os.Getenv("TELEGRAM_TOKEN")
	}
	if p.BotToken == "" {
		return fmt.Errorf("bot token not set")
	}

	if allowedUserIDs == "" {
		allowedUserIDs = os.Getenv("ALLOWED_USERIDS")
	}
	var err error
	if p.AllowedUserIDs, err = parseIDList(allowedUserIDs, "allowed user ids"); err != nil {
		return err
	}
	if allowedGroupIDs == "" {
		allowedGroupIDs = os.Getenv("ALLOWED_GROUPIDS")
	}
	if p.AllowedGroupIDs, err = parseIDList(allowedGroupIDs, "allowed group ids"); err != nil {
		return err
	}

	if p.Engine == "" {
		p.Engine = os.Getenv("STT_ENGINE")
	}
	if p.Engine == "" {
		p.Engine = string(defaultEngine)
	}

	if p.ModelType == "" {
		p.ModelType = os.Getenv("MODEL_TYPE")
	}
	if p.ModelType == "" {
		// Switch to "small" for better accuracy if memory allows.
		p.ModelType = "tiny"
	}
	if !slices.Contains(modelTypes, p.ModelType) {
		return fmt.Errorf("invalid model type: %s", p.ModelType)
	}

	if p.ModelDir == "" {
		p.ModelDir = os.Getenv("WHISPER_MODEL_DIR")
	}
	if p.ModelDir == "" {
		p.ModelDir = "models"
	}

	if p.Threads == 0 {
		p.Threads, _ = strconv.Atoi(os.Getenv("WHISPER_THREADS"))
	}

	if p.STTBin == "" {
		p.STTBin = os.Getenv("STT_BIN")
	}

	p.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	p.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")

	if p.WorkDir == "" {
		p.WorkDir = os.Getenv("WORK_DIR")
	}
	if p.WorkDir == "" {
		p.WorkDir = os.TempDir()
	}

	if p.MaxFileSize < 0 {
		if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
			if p.MaxFileSize, err = strconv.ParseInt(v, 10, 64); err != nil {
				return fmt.Errorf("invalid max file size: %s", v)
			}
		} else {
			p.MaxFileSize = defaultMaxFileSize
		}
	}

	if p.LogLevel == "" {
		p.LogLevel = os.Getenv("LOG_LEVEL")
	}
	if p.LogLevel == "" {
		p.LogLevel = "info"
	}
	if _, ok := logLevelMap[p.LogLevel]; !ok {
		return fmt.Errorf("invalid log level: %s", p.LogLevel)
	}

	return nil
}
