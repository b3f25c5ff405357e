package sharding

// ShardRouter maps an order id to one of the order databases.
type ShardRouter struct {
	ShardCount int // Number of shards
}

func NewShardRouter(shardCount int) *ShardRouter {
	if shardCount < 1 {
		shardCount = 1
	}
	return &ShardRouter{ShardCount: shardCount}
}

func (r *ShardRouter) GetShard(orderID int) int {
	shardIndex := orderID % r.ShardCount
	if shardIndex < 0 {
		shardIndex += r.ShardCount
	}
	return shardIndex
}
