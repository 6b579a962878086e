package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jaqcquesndav/wanzo-ledger-gateway/bootstrap"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/ca"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/common/logger"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/config"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/ledger"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/registry"
	"github.com/jaqcquesndav/wanzo-ledger-gateway/server"
)

var (
	port     string
	devMode  bool
	cfg      *config.Config
	orgReg   *registry.Registry
	caClient *ca.Client
)

// rootCmd는 gateway의 루트 명령어를 나타냅니다
var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Ledger anchoring gateway",
	Long: `Ledger anchoring gateway - 여러 원장 조직의 인증서와 세션을 관리하고
컨텐츠 지문을 앵커링하는 HTTP gateway 입니다.`,
	PersistentPreRun: initializeGateway,
	Run:              runServe,
}

// serveCmd는 HTTP gateway를 기동합니다
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTP gateway를 기동합니다",
	Run:   runServe,
}

// bootstrapCmd는 시작 시 identity 자동 import와 기본 사용자 등록을 수행합니다
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "로컬 자격증명 import와 기본 사용자 등록을 수행합니다",
	Run:   runBootstrap,
}

// enrollCmd는 단일 사용자를 등록하고 인증서를 발급받습니다
var enrollCmd = &cobra.Command{
	Use:   "enroll [username]",
	Short: "단일 사용자를 CA에 등록하고 wallet에 저장합니다",
	Args:  cobra.ExactArgs(1),
	Run:   runEnroll,
}

// orgsCmd는 설정된 조직 목록을 출력합니다
var orgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "설정된 조직 목록을 조회합니다",
	Run:   runOrgs,
}

var (
	enrollOrg         string
	enrollAffiliation string
	enrollSecret      string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&port, "port", "", "HTTP listen port (overrides PORT)")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Development logging")

	enrollCmd.Flags().StringVar(&enrollOrg, "org", "", "Target organization")
	enrollCmd.Flags().StringVar(&enrollAffiliation, "affiliation", "", "CA affiliation")
	enrollCmd.Flags().StringVar(&enrollSecret, "secret", "", "Pre-known enrollment secret")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(orgsCmd)
}

// initializeGateway는 모든 명령어 실행 전에 설정과 컴포넌트를 초기화합니다
func initializeGateway(cmd *cobra.Command, args []string) {
	var err error
	if devMode {
		err = logger.InitializeDevelopment()
	} else {
		err = logger.InitializeDefault()
	}
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	cfg, err = config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if port != "" {
		cfg.Port = port
	}
	cfg.PrintConfig()

	orgReg = registry.New(cfg)
	caClient = ca.New(cfg)
}

func runServe(cmd *cobra.Command, args []string) {
	// cold-start 자격증명 auto-import (best effort)
	bootstrap.EnsureIdentities(cfg.Orgs, nil)

	app := server.New(cfg, orgReg, caClient, ledger.NewService(cfg))

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Fatalf("Server stopped: %v", err)
		}
	}()
	logger.Infof("gateway listening on :%s", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Errorf("Shutdown failed: %v", err)
	}
	logger.Sync()
}

func runBootstrap(cmd *cobra.Command, args []string) {
	outcomes := bootstrap.EnsureIdentities(cfg.Orgs, nil)
	for _, o := range outcomes {
		logger.Infof("import %s/%s: imported=%t reason=%s", o.Org, o.Label, o.Imported, o.Reason)
	}

	ctx := context.Background()
	for _, u := range cfg.BootstrapUsers {
		org := orgReg.Lookup(u.Org)
		var attrs []ca.Attribute
		for name, value := range u.Attrs {
			attrs = append(attrs, ca.Attribute{Name: name, Value: value, ECert: true})
		}
		_, err := caClient.EnrollUser(ctx, org, ca.EnrollmentRequest{
			Username:    u.Username,
			Affiliation: u.Affiliation,
			Attrs:       attrs,
			Secret:      u.Secret,
		})
		if err != nil {
			logger.Errorf("Failed to enroll %s for org %s: %v", u.Username, org.Name, err)
			continue
		}
		logger.Infof("enrolled %s for org %s", u.Username, org.Name)
	}
}

func runEnroll(cmd *cobra.Command, args []string) {
	org := orgReg.Lookup(enrollOrg)
	username, err := caClient.EnrollUser(context.Background(), org, ca.EnrollmentRequest{
		Username:    args[0],
		Affiliation: enrollAffiliation,
		Secret:      enrollSecret,
	})
	if err != nil {
		logger.Fatalf("Failed to enroll %s: %v", args[0], err)
	}
	logger.Infof("enrolled %s for org %s", username, org.Name)
}

func runOrgs(cmd *cobra.Command, args []string) {
	for _, org := range orgReg.All() {
		logger.Infof("org %s: mspId=%s identity=%s wallet=%s ca=%s",
			org.Name, org.MSPID, org.Identity, org.WalletDir, org.CAURL)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Errorf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
