package config

import (
	"context"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"exarena.com/pkg/logger"
)

// LoadAndWatch 读取 config/{service}.yaml 并监听变更，热更新到 out。
// mu 保护 out，为 nil 时新建一个；调用方自己持有锁时传进来，
// 这样 onChange 可以在监听开始之前就拿到它。
// 变更时先在锁内 Unmarshal 再回调 onChange (可以为 nil)。
func LoadAndWatch(service string, out interface{}, mu *sync.RWMutex, onChange func(), opts ...Option) (*viper.Viper, *sync.RWMutex, error) {
	if mu == nil {
		mu = &sync.RWMutex{}
	}
	v := newViper(service, opts)
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".") // 兜底，直接放当前目录也行

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, err
	}
	mu.Lock()
	err := v.Unmarshal(out)
	mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	logger.Info(context.Background(), "config loaded",
		zap.String("service", service), zap.String("file", v.ConfigFileUsed()))

	// 先注册回调再开始监听
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info(context.Background(), "config file changed", zap.String("file", e.Name))

		mu.Lock()
		err := v.Unmarshal(out)
		mu.Unlock()
		if err != nil {
			logger.Error(context.Background(), "reload config error", zap.Error(err))
			return
		}
		if onChange != nil {
			onChange()
		}
	})
	v.WatchConfig()

	return v, mu, nil
}

// Load 读取指定文件，不监听。path 为空时只用默认值和环境变量。
func Load(service, path string, out interface{}, opts ...Option) (*viper.Viper, error) {
	v := newViper(service, opts)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	return v, nil
}

type Option func(*viper.Viper)

// WithDefaults 设置默认值。AutomaticEnv 只认识已知的 key，
// 所以想被环境变量覆盖的 key 都要在这里或配置文件里出现。
func WithDefaults(defaults map[string]interface{}) Option {
	return func(v *viper.Viper) {
		for k, val := range defaults {
			v.SetDefault(k, val)
		}
	}
}

// WithFlags 把命令行参数绑定到 key (key -> flag 名)。
// 显式传了的参数优先级最高，没传的参数只在配置文件和默认值都没有时才生效。
func WithFlags(flags *pflag.FlagSet, keys map[string]string) Option {
	return func(v *viper.Viper) {
		for key, name := range keys {
			if f := flags.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}
}

// 环境变量覆盖，例如：
//
//	ARENA_MAILBOX_SIZE 覆盖 mailbox_size
//	ARENA_THROTTLE_RATE 覆盖 throttle.rate
func newViper(service string, opts []Option) *viper.Viper {
	v := viper.New()
	for _, opt := range opts {
		opt(v)
	}
	v.SetEnvPrefix(strings.ToUpper(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
