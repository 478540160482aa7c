package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"circlenet/backend/internal/auth"
	"circlenet/backend/internal/cache"
	"circlenet/backend/internal/connection"
	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/marketplace"
	"circlenet/backend/internal/opportunity"
	"circlenet/backend/internal/profile"
	"circlenet/backend/internal/store"
	"circlenet/backend/pkg/config"
	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"go.uber.org/zap"
)

type demoUser struct {
	username    string
	email       string
	first, last string
	designation string
	skills      []string
}

var demoUsers = []demoUser{
	{"ada", "ada@circlenet.local", "Ada", "Lovelace", "Analyst", []string{"Mathematics", "Go"}},
	{"grace", "grace@circlenet.local", "Grace", "Hopper", "Rear Admiral", []string{"COBOL", "Compilers"}},
	{"linus", "linus@circlenet.local", "Linus", "Torvalds", "Maintainer", []string{"C", "Git"}},
	{"margaret", "margaret@circlenet.local", "Margaret", "Hamilton", "Director", []string{"Flight Software"}},
}

// demoConnections are sender, receiver, circle, relation, sub-relation
var demoConnections = [][5]string{
	{"ada", "grace", "Outer", "Colleague", "Teammate"},
	{"grace", "margaret", "Outer", "Colleague", "Mentee"},
	{"linus", "ada", "Universal", "Professional", "Contact"},
}

func main() {
	password := flag.String("password", "circlenet-demo1", "Password for every demo account")
	flag.Parse()

	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	driver, err := graph.NewDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	repo := graph.NewRepository(driver, nil)
	defer repo.Close(context.Background())

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisURL, nil)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure graph schema", zap.Error(err))
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal("Failed to migrate relational schema", zap.Error(err))
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		log.Fatal("Failed to create token manager", zap.Error(err))
	}
	authService := auth.NewService(db, repo, cache.NewOTPStore(redisClient, cfg.OTPTTL, cfg.OTPMaxSendsPerHour), auth.NewLogMailer(), tokens)
	profiles := profile.NewService(repo, nil)

	taxonomy, err := connection.LoadTaxonomy()
	if err != nil {
		log.Fatal("Failed to load circle taxonomy", zap.Error(err))
	}
	connections := connection.NewService(repo, taxonomy)

	ids := make(map[string]string, len(demoUsers))
	for _, u := range demoUsers {
		id, err := ensureUser(ctx, authService, u, *password)
		if err != nil {
			log.Fatal("Failed to create demo user", zap.String("username", u.username), zap.Error(err))
		}
		ids[u.username] = id

		designation := u.designation
		if _, err := profiles.UpdateProfile(ctx, id, graph.ProfileUpdate{Designation: &designation}); err != nil {
			log.Warn("Failed to update profile", zap.String("username", u.username), zap.Error(err))
		}
		for _, skill := range u.skills {
			if _, err := profiles.AddSkill(ctx, id, skill); err != nil && !apperrors.IsErrorType(err, apperrors.ErrorTypeConflict) {
				log.Warn("Failed to add skill", zap.String("username", u.username), zap.Error(err))
			}
		}
		log.Info("Demo user ready", zap.String("username", u.username), zap.String("user_id", id))
	}

	for _, c := range demoConnections {
		view, err := connections.SendRequest(ctx, ids[c[0]], connection.RequestInput{
			ReceiverUID: ids[c[1]],
			Circle:      c[2],
			Relation:    c[3],
			SubRelation: c[4],
		})
		if err != nil {
			log.Info("Skipping connection", zap.String("from", c[0]), zap.String("to", c[1]), zap.Error(err))
			continue
		}
		if _, err := connections.Accept(ctx, ids[c[1]], view.UID); err != nil {
			log.Warn("Failed to accept connection", zap.Error(err))
		}
	}

	opportunities := opportunity.NewService(repo, redisClient)
	if _, err := opportunities.Create(ctx, ids["grace"], opportunity.Input{
		Role:            "Compiler Engineer",
		JobType:         opportunity.JobFullTime,
		Location:        "Arlington, VA",
		IsRemote:        true,
		ExperienceLevel: "senior",
		SalaryMin:       120000,
		SalaryMax:       160000,
		Description:     "Work on the next generation of business-oriented languages.",
		Skills:          []string{"Compilers", "COBOL"},
	}); err != nil {
		log.Warn("Failed to create demo opportunity", zap.Error(err))
	}

	services := marketplace.NewService(repo, redisClient)
	if _, err := services.Create(ctx, ids["linus"], marketplace.Input{
		Title:        "Kernel patch review",
		Description:  "Careful review of one patch series against mainline.",
		Category:     "engineering",
		PricingModel: marketplace.PricingFixed,
		Price:        500,
		DeliveryDays: 7,
		Tags:         []string{"linux", "c"},
	}); err != nil {
		log.Warn("Failed to create demo service", zap.Error(err))
	}

	log.Info("Seeding complete", zap.Int("users", len(ids)))
}

// ensureUser signs the user up, or logs in when the username already exists
func ensureUser(ctx context.Context, s *auth.Service, u demoUser, password string) (string, error) {
	id, err := s.Signup(ctx, auth.SignupInput{
		Username:  u.username,
		Email:     u.email,
		Password:  password,
		FirstName: u.first,
		LastName:  u.last,
	})
	if err == nil {
		return id, nil
	}
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeConflict) {
		return "", err
	}
	_, account, err := s.Login(ctx, u.username, password)
	if err != nil {
		return "", err
	}
	return account.ID, nil
}
