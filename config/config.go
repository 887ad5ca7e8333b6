package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalidConfiguration 配置缺失或非法，在流水线启动前就终止
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Settings 一次运行的配置快照，加载后不再修改
type Settings struct {
	ModelID            string   `mapstructure:"model_id" validate:"required"`
	TargetLabels       []string `mapstructure:"target_labels" validate:"required,min=1,dive,required"`
	BackgroundImages   string   `mapstructure:"background_images"`
	Image              string   `mapstructure:"image"`
	Blur               bool     `mapstructure:"blur"`
	BlurLevel          int      `mapstructure:"blur_level" validate:"gte=0,lte=256"`
	UseBackgroundImage bool     `mapstructure:"use_background_image"`

	SmoothingDecay float64 `mapstructure:"smoothing_decay" validate:"gte=0,lt=1"`
	Kernel         string  `mapstructure:"kernel" validate:"oneof=gaussian box"`
	DilationSize   int     `mapstructure:"dilation_size" validate:"gte=0,lte=256"`
	DilationShape  string  `mapstructure:"dilation_shape" validate:"oneof=cross rect"`
	Interpolation  string  `mapstructure:"interpolation" validate:"oneof=nearest bilinear catmullrom lanczos"`

	SegmenterURL     string        `mapstructure:"segmenter_url" validate:"omitempty,url"`
	SegmenterTimeout time.Duration `mapstructure:"segmenter_timeout" validate:"gte=0"`

	InputDir         string        `mapstructure:"input_dir"`
	SnapshotURL      string        `mapstructure:"snapshot_url" validate:"omitempty,url"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval" validate:"gte=0"`
	MaxFrames        int           `mapstructure:"max_frames" validate:"gte=0"`

	OutputDir     string        `mapstructure:"output_dir"`
	Listen        string        `mapstructure:"listen" validate:"omitempty,hostname_port"`
	LogMode       string        `mapstructure:"log_mode" validate:"oneof=debug release"`
	StatsInterval time.Duration `mapstructure:"stats_interval" validate:"gte=0"`
}

// ImagePath 背景图完整路径
func (s *Settings) ImagePath() string {
	return filepath.Join(s.BackgroundImages, s.Image)
}

// Load 从 JSON 文件加载配置，环境变量 BGBLEND_<KEY> 可覆盖同名配置
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("BGBLEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %v: %w", err, ErrInvalidConfiguration)
	}

	var cfg Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %v: %w", err, ErrInvalidConfiguration)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_id", "")
	v.SetDefault("target_labels", []string{})
	v.SetDefault("background_images", "")
	v.SetDefault("image", "")
	v.SetDefault("blur", false)
	v.SetDefault("blur_level", 10)
	v.SetDefault("use_background_image", false)
	v.SetDefault("smoothing_decay", 0.5)
	v.SetDefault("kernel", "gaussian")
	v.SetDefault("dilation_size", 0)
	v.SetDefault("dilation_shape", "cross")
	v.SetDefault("interpolation", "nearest")
	v.SetDefault("segmenter_url", "")
	v.SetDefault("segmenter_timeout", 5*time.Second)
	v.SetDefault("input_dir", "")
	v.SetDefault("snapshot_url", "")
	v.SetDefault("snapshot_interval", 100*time.Millisecond)
	v.SetDefault("max_frames", 0)
	v.SetDefault("output_dir", "")
	v.SetDefault("listen", "")
	v.SetDefault("log_mode", "debug")
	v.SetDefault("stats_interval", 5*time.Second)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(backgroundRules, Settings{})
	return v
}

// backgroundRules 必须能得到替换背景: 使用背景图时需要文件名，不用背景图时必须开启模糊
func backgroundRules(sl validator.StructLevel) {
	s := sl.Current().Interface().(Settings)
	switch {
	case s.UseBackgroundImage && s.Image == "":
		sl.ReportError(s.Image, "image", "Image", "required_with_background_image", "")
	case !s.UseBackgroundImage && !s.Blur:
		sl.ReportError(s.Blur, "blur", "Blur", "blur_or_background_image", "")
	}
}

func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), ErrInvalidConfiguration)
		}
		return fmt.Errorf("%v: %w", err, ErrInvalidConfiguration)
	}
	return nil
}
