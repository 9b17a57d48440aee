package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maksha19/message-be-v2/agent"
	"github.com/maksha19/message-be-v2/auth"
	"github.com/maksha19/message-be-v2/blob"
	"github.com/maksha19/message-be-v2/broker"
	"github.com/maksha19/message-be-v2/command"
	"github.com/maksha19/message-be-v2/dashboard"
	"github.com/maksha19/message-be-v2/db"
	"github.com/maksha19/message-be-v2/engine"
	awsEngine "github.com/maksha19/message-be-v2/engine/aws"
	dockerEngine "github.com/maksha19/message-be-v2/engine/docker"
	"github.com/maksha19/message-be-v2/event"
	"github.com/maksha19/message-be-v2/instance"
	"github.com/maksha19/message-be-v2/subscription"
	"github.com/maksha19/message-be-v2/usage"
	"github.com/maksha19/message-be-v2/user"

	"github.com/TheZeroSlave/zapsentry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	dockerClient "github.com/docker/docker/client"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v7"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var authEnvironment auth.Environment
	var dotFile string
	var err error

	// Determine running environment and initialize structural logger
	env := os.Getenv("API_ENV")
	if "production" == env {
		dotFile = ".env.production"
		authEnvironment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		authEnvironment = auth.EnvDevelopment
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))
	defer logger.Sync()

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: string(authEnvironment),
		Debug:       authEnvironment == auth.EnvDevelopment,
	}); err != nil {
		logger.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "api",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Fatal("Cannot attach sentry to logger",
			zap.Error(err),
		)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	database, err := db.New(db.Options{
		Logger: logger,
		URI:    os.Getenv("POSTGRES_URI"),
	})
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{os.Getenv("REDIS_URI")},
		Password: os.Getenv("REDIS_PW"),
		DB:       0,
	})
	if _, err := rdb.Ping().Result(); err != nil {
		logger.Fatal("Cannot connect to Redis",
			zap.Error(err),
		)
	}
	defer rdb.Close()

	authManager, err := auth.New(auth.Options{
		Redis:  rdb,
		Logger: logger,

		JWTSigningKey:  os.Getenv("JWT_SIGNING_KEY"),
		PasswordPepper: os.Getenv("PASSWORD_PEPPER"),

		Environment: authEnvironment,
	})
	if err != nil {
		logger.Fatal("Cannot initialize AuthManager",
			zap.Error(err),
		)
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Fatal("Cannot load AWS configurations",
			zap.Error(err),
		)
	}

	var provider engine.Provider
	if os.Getenv("ENGINE_PROVIDER") == "docker" {
		// local development without an AWS account
		dkr, err := dockerClient.NewEnvClient()
		if err != nil {
			logger.Fatal("Cannot connect to local Docker daemon",
				zap.Error(err),
			)
		}
		provider, err = dockerEngine.NewClient(dockerEngine.Options{
			Client: dkr,
			Image:  os.Getenv("AGENT_IMAGE"),
			Logger: logger,
		})
		if err != nil {
			logger.Fatal("Cannot initialize Docker provider",
				zap.Error(err),
			)
		}
	} else {
		volumeSize, err := strconv.ParseInt(os.Getenv("EC2_VOLUME_SIZE_GIB"), 10, 32)
		if err != nil {
			volumeSize = 8
		}
		provider, err = awsEngine.NewClient(awsEngine.Options{
			EC2: ec2.NewFromConfig(awsCfg),
			SSM: ssm.NewFromConfig(awsCfg),
			Template: awsEngine.LaunchTemplate{
				ImageID:            os.Getenv("EC2_IMAGE_ID"),
				InstanceType:       os.Getenv("EC2_INSTANCE_TYPE"),
				KeyName:            os.Getenv("EC2_KEY_NAME"),
				SecurityGroupIDs:   strings.Split(os.Getenv("EC2_SECURITY_GROUP_IDS"), ","),
				SubnetID:           os.Getenv("EC2_SUBNET_ID"),
				IamInstanceProfile: os.Getenv("EC2_IAM_INSTANCE_PROFILE"),
				VolumeSizeGiB:      int32(volumeSize),
				BootCommand:        os.Getenv("AGENT_BOOT_COMMAND"),
			},
			Logger: logger,
		})
		if err != nil {
			logger.Fatal("Cannot initialize EC2 provider",
				zap.Error(err),
			)
		}
	}

	userManager, err := user.NewManager(logger, database)
	if err != nil {
		logger.Fatal("Cannot initialize UserManager",
			zap.Error(err),
		)
	}

	usageManager, err := usage.NewManager(logger, database)
	if err != nil {
		logger.Fatal("Cannot initialize UsageManager",
			zap.Error(err),
		)
	}

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		DB:           database,
		UserManager:  userManager,
		UsageManager: usageManager,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
			zap.Error(err),
		)
	}

	instanceManager, err := instance.NewManager(logger, database)
	if err != nil {
		logger.Fatal("Cannot initialize InstanceManager",
			zap.Error(err),
		)
	}

	provisioner, err := instance.NewProvisioner(instance.ProvisionerOptions{
		InstanceManager: instanceManager,
		Provider:        provider,
		AgentBootCmd:    os.Getenv("AGENT_BOOT_COMMAND"),
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Provisioner",
			zap.Error(err),
		)
	}

	prober, err := instance.NewProber(instance.ProberOptions{
		Provider: provider,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Prober",
			zap.Error(err),
		)
	}

	agentClient, err := agent.NewClient(agent.Options{
		HTTPClient: &http.Client{
			Timeout: time.Second * 15,
		},
		InstanceManager: instanceManager,
		Provisioner:     provisioner,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Agent Client",
			zap.Error(err),
		)
	}

	payloadSink, err := blob.NewS3Sink(s3.NewFromConfig(awsCfg), os.Getenv("S3_PAYLOAD_BUCKET"))
	if err != nil {
		logger.Fatal("Cannot initialize payload sink",
			zap.Error(err),
		)
	}

	notifier, err := broker.NewAMQPNotifier(os.Getenv("AMQP_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Broker",
			zap.Error(err),
		)
	}
	defer notifier.Close()

	eventManager, err := event.NewManager(event.ManagerOptions{
		DB:       database,
		Sink:     payloadSink,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize EventManager",
			zap.Error(err),
		)
	}

	dispatcher, err := command.NewDispatcher(command.DispatcherOptions{
		SubscriptionManager: subscriptionManager,
		Provisioner:         provisioner,
		Prober:              prober,
		AgentClient:         agentClient,
		EventManager:        eventManager,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Dispatcher",
			zap.Error(err),
		)
	}

	userRouter, err := user.NewService(user.Options{
		Auth:        authManager,
		UserManager: userManager,
		Quota:       subscriptionManager,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize User Service Router",
			zap.Error(err),
		)
	}

	commandRouter, err := command.NewService(command.ServiceOptions{
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Command Service Router",
			zap.Error(err),
		)
	}

	dashboardRouter, err := dashboard.NewService(dashboard.Options{
		Auth:                authManager,
		UserManager:         userManager,
		SubscriptionManager: subscriptionManager,
		InstanceManager:     instanceManager,
		EventManager:        eventManager,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Dashboard Service Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	rootRouter.Mount("/users", userRouter.Router())

	rootRouter.Route("/commands", func(r chi.Router) {
		r.Use(authManager.Middleware())
		r.Use(authManager.ClaimCheck())
		r.Mount("/", commandRouter.Router())
	})

	rootRouter.Route("/dashboard", func(r chi.Router) {
		r.Use(authManager.Middleware())
		r.Use(authManager.ClaimCheck())
		r.Mount("/", dashboardRouter.Router())
	})

	srv := &http.Server{
		Handler: rootRouter,
		Addr:    ":" + os.Getenv("API_PORT"),
	}

	logger.Info("API listening",
		zap.String("Addr", srv.Addr),
	)

	log.Fatalln(srv.ListenAndServe())
}
