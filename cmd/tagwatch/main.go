package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	ctrlwebhook "sigs.k8s.io/controller-runtime/pkg/webhook"

	"github.com/ppiankov/tagwatch/internal/audit"
	"github.com/ppiankov/tagwatch/internal/config"
	"github.com/ppiankov/tagwatch/internal/events"
	"github.com/ppiankov/tagwatch/internal/inventory"
	"github.com/ppiankov/tagwatch/internal/metrics"
	"github.com/ppiankov/tagwatch/internal/notify"
	"github.com/ppiankov/tagwatch/internal/runner"
	"github.com/ppiankov/tagwatch/internal/suppress"
	"github.com/ppiankov/tagwatch/internal/version"
	"github.com/ppiankov/tagwatch/internal/webhook"
)

const admissionPath = "/validate-tagwatch-annotations"

// options holds flag values shared by check and watch.
type options struct {
	namespace          string
	debug              bool
	concurrency        int
	registryTimeout    time.Duration
	cacheSize          int
	digestTrustedHosts []string
	insecureRegistries []string
	registryCA         string
	registryAuthFile   string
	webhookURL         string
	webhookEvents      []string
}

// config converts flag values into a Config.
func (o *options) config() config.Config {
	cfg := config.New()
	cfg.Namespace = o.namespace
	cfg.Concurrency = o.concurrency
	cfg.RegistryTimeout = o.registryTimeout
	cfg.CacheSize = o.cacheSize
	cfg.DigestTrustedHosts = config.HostSet(o.digestTrustedHosts)
	cfg.InsecureHosts = config.HostSet(o.insecureRegistries)
	cfg.RegistryCA = o.registryCA
	cfg.RegistryAuthFile = o.registryAuthFile
	return cfg
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "tagwatch",
		Short:        "Audit running Kubernetes workloads against their image registries",
		Version:      version.Version,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.namespace, "namespace", "", "namespace to audit (empty = all namespaces)")
	pf.BoolVar(&opts.debug, "debug", false, "enable development logging with debug output")
	pf.IntVar(&opts.concurrency, "concurrency", config.DefaultConcurrency, "max parallel registry checks")
	pf.DurationVar(&opts.registryTimeout, "registry-timeout", config.DefaultRegistryTimeout, "timeout for a single registry request")
	pf.IntVar(&opts.cacheSize, "cache-size", config.DefaultCacheSize, "max tag lists and digests cached per run")
	pf.StringSliceVar(&opts.digestTrustedHosts, "digest-trusted-host", config.DefaultDigestTrustedHosts, "registries whose schema v1 manifest digests are trusted")
	pf.StringSliceVar(&opts.insecureRegistries, "insecure-registry", nil, "registries contacted over plain HTTP")
	pf.StringVar(&opts.registryCA, "registry-ca", "", "path to an extra CA bundle for registry TLS")
	pf.StringVar(&opts.registryAuthFile, "registry-auth-file", "", "path to a dockerconfigjson file with registry credentials")
	pf.StringVar(&opts.webhookURL, "webhook-url", "", "URL to POST JSON finding notifications to (empty = disabled)")
	pf.StringSliceVar(&opts.webhookEvents, "webhook-events", nil, "finding types to notify: newer-tag, content-drift (empty = all)")

	checkCmd := newCheckCmd(opts)
	root.AddCommand(checkCmd)
	root.AddCommand(newWatchCmd(opts))

	// Bare "tagwatch" runs a single check.
	root.RunE = checkCmd.RunE

	return root
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Audit the cluster once and print findings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.config()
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), opts, cfg)
		},
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	var (
		interval        time.Duration
		renotifyAfter   time.Duration
		metricsAddr     string
		leaderElect     bool
		enableAdmission bool
		webhookPort     int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Audit the cluster periodically, emitting events and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.config()
			cfg.Interval = interval
			cfg.RenotifyAfter = renotifyAfter
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runWatch(opts, cfg, metricsAddr, leaderElect, enableAdmission, webhookPort)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", config.DefaultInterval, "time between audit runs")
	cmd.Flags().DurationVar(&renotifyAfter, "renotify-after", config.DefaultRenotifyAfter, "wait before publishing an unchanged finding again (0 = every run)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":8080", "address for the metrics endpoint")
	cmd.Flags().BoolVar(&leaderElect, "leader-elect", true, "run audits on a single elected replica")
	cmd.Flags().BoolVar(&enableAdmission, "enable-admission-webhook", false, "serve the tagwatch.dev annotation validating webhook")
	cmd.Flags().IntVar(&webhookPort, "webhook-port", 9443, "port for the admission webhook server")

	return cmd
}

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(corev1.AddToScheme(scheme))
	utilruntime.Must(appsv1.AddToScheme(scheme))
	utilruntime.Must(batchv1.AddToScheme(scheme))
	return scheme
}

func runCheck(ctx context.Context, out io.Writer, opts *options, cfg config.Config) error {
	ctrl.SetLogger(zap.New(zap.UseDevMode(opts.debug)))
	ctx = ctrl.LoggerInto(ctx, ctrl.Log.WithName("check"))

	restCfg, err := ctrl.GetConfig()
	if err != nil {
		return fmt.Errorf("loading kubeconfig: %w", err)
	}
	c, err := client.New(restCfg, client.Options{Scheme: newScheme()})
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	reg, err := runner.NewRegistryClient(cfg, nil)
	if err != nil {
		return fmt.Errorf("configuring registry client: %w", err)
	}

	r := &runner.Runner{
		Inventory: inventory.NewCollector(c),
		Registry:  reg,
		Config:    cfg,
		Notifier:  notify.NewNotifier(opts.webhookURL, opts.webhookEvents),
	}
	report, err := r.RunOnce(ctx)
	if err != nil {
		return err
	}
	printReport(out, report)
	return nil
}

func printReport(out io.Writer, report audit.Report) {
	for _, f := range report.Findings {
		_, _ = fmt.Fprintln(out, f.String())
	}
	for _, f := range report.Failures {
		_, _ = fmt.Fprintf(out, "Check failed for %s\n", f.Error())
	}
}

func runWatch(opts *options, cfg config.Config, metricsAddr string, leaderElect, enableAdmission bool, webhookPort int) error {
	ctrl.SetLogger(zap.New(zap.UseDevMode(opts.debug)))
	logger := ctrl.Log.WithName("watch")

	mgrOpts := ctrl.Options{
		Scheme: newScheme(),
		Metrics: metricsserver.Options{
			BindAddress: metricsAddr,
		},
		LeaderElection:   leaderElect,
		LeaderElectionID: "tagwatch",
	}
	if enableAdmission {
		mgrOpts.WebhookServer = ctrlwebhook.NewServer(ctrlwebhook.Options{Port: webhookPort})
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), mgrOpts)
	if err != nil {
		return fmt.Errorf("creating manager: %w", err)
	}

	m := metrics.NewCounters(ctrlmetrics.Registry)
	reg, err := runner.NewRegistryClient(cfg, m)
	if err != nil {
		return fmt.Errorf("configuring registry client: %w", err)
	}

	r := &runner.Runner{
		Inventory: inventory.NewCollector(mgr.GetClient()),
		Registry:  reg,
		Config:    cfg,
		Emitter:   events.NewEmitter(mgr.GetEventRecorder("tagwatch")),
		Notifier:  notify.NewNotifier(opts.webhookURL, opts.webhookEvents),
		Metrics:   m,
		Suppress:  suppress.NewStore(cfg.RenotifyAfter),
	}
	if err := mgr.Add(r); err != nil {
		return fmt.Errorf("adding runner: %w", err)
	}

	if enableAdmission {
		mgr.GetWebhookServer().Register(admissionPath, &ctrlwebhook.Admission{Handler: &webhook.AnnotationValidator{}})
		logger.Info("admission webhook enabled", "path", admissionPath, "port", webhookPort)
	}

	logger.Info("starting", "version", version.Version, "interval", cfg.Interval.String(), "namespace", cfg.Namespace)
	return mgr.Start(ctrl.SetupSignalHandler())
}
