package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Load 读取 config/{service}.yaml（文件不存在时只用默认值 + 环境变量），解码进 out。
// 配置只在启动时解析一次，不做热更新。
//
// 环境变量覆盖，例如 service=tickerstream 时：
//
//	TICKERSTREAM_SYMBOLS          覆盖 symbols
//	TICKERSTREAM_HEALTH_GRACE     覆盖 health.grace
func Load(service string, out interface{}, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// AutomaticEnv 只对已知 key 生效，所以每个 key 都要有默认值
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(envPrefix(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	return v, nil
}

func envPrefix(service string) string {
	return strings.ToUpper(strings.ReplaceAll(service, "-", "_"))
}
