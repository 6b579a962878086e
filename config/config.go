package config

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/logger"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// OrganizationConfig 하나의 원장 조직 설정 (프로세스 시작 시 고정됨)
type OrganizationConfig struct {
	Name                 string `json:"name" yaml:"name"`
	MSPID                string `json:"mspId" yaml:"mspId"`
	CCPPath              string `json:"ccpPath" yaml:"ccpPath"`
	WalletDir            string `json:"walletDir" yaml:"walletDir"`
	Identity             string `json:"identity" yaml:"identity"`
	DiscoveryAsLocalhost bool   `json:"discoveryAsLocalhost" yaml:"discoveryAsLocalhost"`
	CAURL                string `json:"caUrl" yaml:"caUrl"`
	CAName               string `json:"caName" yaml:"caName"`
	CAAdminIdentity      string `json:"caAdminIdentity" yaml:"caAdminIdentity"`
}

// BootstrapUser 기본 사용자 일괄 등록 항목
type BootstrapUser struct {
	Org         string            `json:"org" yaml:"org"`
	Username    string            `json:"username" yaml:"username"`
	Affiliation string            `json:"affiliation" yaml:"affiliation"`
	Secret      string            `json:"secret,omitempty" yaml:"secret,omitempty"`
	Attrs       map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// Config gateway 전체 설정
type Config struct {
	Port             string
	DefaultOrg       string
	Channel          string
	Chaincode        string
	DockerMode       bool
	DiscoveryEnabled bool
	CAAdminID        string
	CAAdminSecret    string
	BootstrapUsers   []BootstrapUser
	Orgs             []OrganizationConfig
}

type orgsFile struct {
	Orgs []OrganizationConfig `json:"orgs" yaml:"orgs"`
}

// Load 환경변수와 조직 목록 파일에서 설정을 로드합니다
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		logger.Debugf("no .env file loaded: %v", err)
	}

	cfg := &Config{
		Port:             getEnvOrDefault("PORT", "8085"),
		DefaultOrg:       getEnvOrDefault("DEFAULT_ORG", ""),
		Channel:          getEnvOrDefault("CHANNEL_NAME", "mychannel"),
		Chaincode:        getEnvOrDefault("CHAINCODE_NAME", "anchor"),
		DockerMode:       getEnvBoolOrDefault("DOCKER_MODE", false),
		DiscoveryEnabled: getEnvBoolOrDefault("DISCOVERY_ENABLED", true),
		CAAdminID:        getEnvOrDefault("CA_ADMIN_ID", "admin"),
		CAAdminSecret:    getEnvOrDefault("CA_ADMIN_SECRET", "adminpw"),
	}

	orgs, err := loadOrgs()
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, errors.New("no organization configured")
	}
	cfg.Orgs = orgs

	if usersJSON := os.Getenv("BOOTSTRAP_USERS_JSON"); usersJSON != "" {
		if err := json.Unmarshal([]byte(usersJSON), &cfg.BootstrapUsers); err != nil {
			return nil, errors.Wrap(err, "failed to parse BOOTSTRAP_USERS_JSON")
		}
	}

	return cfg, nil
}

// loadOrgs 조직 목록 로드: ORGS_FILE > ORGS_JSON > 단일 조직 환경변수 fallback
func loadOrgs() ([]OrganizationConfig, error) {
	if path := os.Getenv("ORGS_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read orgs file %s", path)
		}
		var f orgsFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, errors.Wrapf(err, "failed to parse orgs file %s", path)
		}
		return normalizeOrgs(f.Orgs), nil
	}

	if inline := os.Getenv("ORGS_JSON"); inline != "" {
		var orgs []OrganizationConfig
		if err := json.Unmarshal([]byte(inline), &orgs); err != nil {
			return nil, errors.Wrap(err, "failed to parse ORGS_JSON")
		}
		return normalizeOrgs(orgs), nil
	}

	// 단일 조직 fallback
	org := OrganizationConfig{
		Name:                 getEnvOrDefault("FABRIC_ORG", "org1"),
		MSPID:                getEnvOrDefault("FABRIC_MSP_ID", "Org1MSP"),
		CCPPath:              getEnvOrDefault("FABRIC_CCP_PATH", ""),
		WalletDir:            getEnvOrDefault("FABRIC_WALLET_DIR", "wallet"),
		Identity:             getEnvOrDefault("FABRIC_IDENTITY", "appUser"),
		DiscoveryAsLocalhost: getEnvBoolOrDefault("AS_LOCALHOST", true),
		CAURL:                getEnvOrDefault("FABRIC_CA_URL", ""),
		CAName:               getEnvOrDefault("FABRIC_CA_NAME", ""),
		CAAdminIdentity:      getEnvOrDefault("FABRIC_CA_ADMIN_IDENTITY", "admin"),
	}
	return []OrganizationConfig{org}, nil
}

// normalizeOrgs fills per-org defaults the operator usually leaves implicit
func normalizeOrgs(orgs []OrganizationConfig) []OrganizationConfig {
	for i := range orgs {
		if orgs[i].Identity == "" {
			orgs[i].Identity = "appUser"
		}
		if orgs[i].CAAdminIdentity == "" {
			orgs[i].CAAdminIdentity = "admin"
		}
	}
	return orgs
}

// loadEnvFile .env 파일 로드
func loadEnvFile() error {
	possiblePaths := []string{
		"config/.env",
		".env",
		"../config/.env",
	}

	var envPath string
	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			envPath = path
			break
		}
	}

	if envPath == "" {
		return errors.New("no .env file found")
	}

	file, err := os.Open(envPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open .env file: %s", envPath)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// 빈 줄이나 주석 무시
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// KEY=VALUE 파싱
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// 따옴표 제거
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}

		os.Setenv(key, value)
	}

	return scanner.Err()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

// PrintConfig 현재 설정을 로그로 출력합니다
func (c *Config) PrintConfig() {
	logger.Infof("=== Configuration ===")
	logger.Infof(" > Port: %s", c.Port)
	logger.Infof(" > Channel: %s", c.Channel)
	logger.Infof(" > Chaincode: %s", c.Chaincode)
	logger.Infof(" > Docker Mode: %t", c.DockerMode)
	logger.Infof(" > Discovery Enabled: %t", c.DiscoveryEnabled)
	for _, org := range c.Orgs {
		logger.Infof(" > Org %s: mspId=%s identity=%s wallet=%s", org.Name, org.MSPID, org.Identity, org.WalletDir)
	}
}
