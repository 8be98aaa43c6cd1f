package quota

// reserveScript atomically credits cost units to the global daily counter and
// one reply to the per-user daily counter, resetting a 48h TTL on every write so
// stale date keys expire on their own instead of needing an explicit reset
// (spec.md §9: "stale-date counters are overwritten on next write rather than
// explicitly reset"). Adapted from the teacher's token-bucket Lua script
// (internal/service/ratelimiter.RedisLuaLimiter), repurposed from a
// refill-by-rate bucket to a fixed daily ceiling that resets by date key
// instead of by elapsed time.
const reserveScript = `
local global_key = KEYS[1]
local user_key = KEYS[2]
local cost = tonumber(ARGV[1])
local ttl_seconds = tonumber(ARGV[2])

local global_total = redis.call("INCRBY", global_key, cost)
redis.call("EXPIRE", global_key, ttl_seconds)

local user_total = redis.call("INCR", user_key)
redis.call("EXPIRE", user_key, ttl_seconds)

return { global_total, user_total }
`
