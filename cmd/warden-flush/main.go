// warden-flush is an operator tool for manually evicting cached permission
// data. The invalidation engine keeps the cache honest in normal operation;
// this exists for incident response, when an operator needs to force
// re-resolution without waiting for events or TTLs.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/cache"
)

var (
	redisURL = flag.String("redis-url", getEnv("WARDEN_REDIS_URL", "redis://localhost:6379/0"), "Redis connection URL")
	userID   = flag.Int64("user", 0, "Evict one user's cached permissions (requires --org)")
	orgID    = flag.Int64("org", 0, "Organization scope; alone, sweeps every user in the organization")
	roleID   = flag.Int64("role", 0, "Evict one role's cached permission bundle")
	all      = flag.Bool("all", false, "Flush every warden cache entry")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if !*all && *userID == 0 && *orgID == 0 && *roleID == 0 {
		log.Error("nothing to flush: pass --user with --org, --org, --role, or --all")
		flag.Usage()
		os.Exit(2)
	}
	if *userID != 0 && *orgID == 0 {
		log.Error("--user requires --org: user permissions are cached per organization")
		os.Exit(2)
	}

	opts, err := redis.ParseURL(*redisURL)
	if err != nil {
		log.WithError(err).Fatal("invalid redis URL")
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}

	c := cache.NewRedisCacheFromClient(client, cache.DefaultTTLPolicy(), nil)

	switch {
	case *all:
		patterns := []string{"userPermissions:*", "rolePermissions:*", "organizationRoles:*"}
		if err := c.EvictPatterns(ctx, patterns...); err != nil {
			log.WithError(err).Fatal("full flush failed")
		}
		log.Info("flushed all warden cache entries")

	case *userID != 0:
		key := cache.UserPermissionsKey(*userID, *orgID)
		if err := c.Evict(ctx, key); err != nil {
			log.WithError(err).Fatal("user eviction failed")
		}
		log.WithFields(logrus.Fields{"user": *userID, "org": *orgID}).Info("evicted user permissions")

	case *orgID != 0:
		if err := c.EvictPatterns(ctx, cache.UserPermissionsOrgPattern(*orgID)); err != nil {
			log.WithError(err).Fatal("organization sweep failed")
		}
		if err := c.Evict(ctx, cache.OrganizationRolesKey(*orgID)); err != nil {
			log.WithError(err).Fatal("organization roles eviction failed")
		}
		log.WithField("org", *orgID).Info("swept organization cache entries")
	}

	if *roleID != 0 {
		if err := c.Evict(ctx, cache.RolePermissionsKey(*roleID)); err != nil {
			log.WithError(err).Fatal("role eviction failed")
		}
		log.WithField("role", *roleID).Info("evicted role permission bundle")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
