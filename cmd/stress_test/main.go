package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/pizzahub/internal/adapter/handler/pb"
	"github.com/rl1809/pizzahub/internal/adapter/storage"
	"github.com/rl1809/pizzahub/internal/core/domain"
	"github.com/rl1809/pizzahub/internal/core/service"
)

// Every placement asks for one of each, so the scarcest stock bounds how
// many orders can succeed.
var (
	stressBase   = domain.IngredientKey{Type: domain.IngredientBase, ID: "stress-crust"}
	stressSauce  = domain.IngredientKey{Type: domain.IngredientSauce, ID: "stress-tomato"}
	stressCheese = domain.IngredientKey{Type: domain.IngredientCheese, ID: "stress-mozzarella"}
)

type placeFunc func(ctx context.Context, customer string) error

func main() {
	var (
		redisAddr = flag.String("redis", "localhost:6379", "redis address holding ingredient stock")
		grpcAddr  = flag.String("grpc", "", "place orders through a running server instead of in-process")
		stock     = flag.Int("stock", 20, "initial stock of the scarcest ingredient")
		requests  = flag.Int("requests", 50, "number of concurrent placements")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	ingredients := storage.NewRedisAdapter(rdb)
	if err := seed(ctx, ingredients, *stock); err != nil {
		logger.Error("failed to seed stock", "error", err)
		os.Exit(1)
	}

	var place placeFunc
	if *grpcAddr != "" {
		conn, err := grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			logger.Error("failed to dial server", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		place = grpcPlacer(pb.NewOrderServiceClient(conn))
	} else {
		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc := service.NewOrderService(ingredients, storage.NewMemoryOrderStore(), nil, service.WithLogger(quiet))
		place = localPlacer(svc)
	}

	var success, rejected, failed atomic.Int32
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *requests; i++ {
		customer := fmt.Sprintf("user-%d", i)
		g.Go(func() error {
			err := place(gctx, customer)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected.Add(1)
			default:
				failed.Add(1)
				logger.Warn("placement failed", "customer", customer, "error", err)
			}
			return nil
		})
	}
	g.Wait()
	elapsed := time.Since(start)

	want := min(*stock, *requests)
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *stock)
	fmt.Printf("Total Requests:   %d\n", *requests)
	fmt.Printf("Successful:       %d\n", success.Load())
	fmt.Printf("Out of stock:     %d\n", rejected.Load())
	fmt.Printf("Errors:           %d\n", failed.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	ok := true
	if int(success.Load()) != want {
		fmt.Printf("FAIL: expected %d successful orders, got %d\n", want, success.Load())
		ok = false
	} else {
		fmt.Printf("PASS: exactly %d orders succeeded\n", want)
	}

	base, err := ingredients.Get(ctx, stressBase)
	if err != nil {
		logger.Error("failed to read final stock", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Final Base Stock: %d\n", base.StockQuantity)
	if base.StockQuantity != *stock-int(success.Load()) {
		fmt.Printf("FAIL: stock %d does not match %d placements\n", base.StockQuantity, success.Load())
		ok = false
	}

	// Sauce and cheese are stocked generously; rollbacks must leave them
	// exactly one unit lower per successful order.
	plenty := 10 * *stock
	for _, key := range []domain.IngredientKey{stressSauce, stressCheese} {
		ing, err := ingredients.Get(ctx, key)
		if err != nil {
			logger.Error("failed to read final stock", "ingredient", key.String(), "error", err)
			os.Exit(1)
		}
		if ing.StockQuantity != plenty-int(success.Load()) {
			fmt.Printf("FAIL: %s leaked reservations, stock %d\n", key, ing.StockQuantity)
			ok = false
		}
	}

	if !ok {
		os.Exit(1)
	}
}

func seed(ctx context.Context, store *storage.RedisAdapter, stock int) error {
	now := time.Now()
	for _, ing := range []domain.Ingredient{
		{Type: stressBase.Type, ID: stressBase.ID, Name: "Stress Crust", Price: decimal.NewFromInt(100), StockQuantity: stock},
		{Type: stressSauce.Type, ID: stressSauce.ID, Name: "Stress Tomato", Price: decimal.NewFromInt(20), StockQuantity: 10 * stock},
		{Type: stressCheese.Type, ID: stressCheese.ID, Name: "Stress Mozzarella", Price: decimal.NewFromInt(40), StockQuantity: 10 * stock},
	} {
		ing.Available = true
		ing.CreatedAt, ing.UpdatedAt = now, now
		if err := store.Save(ctx, ing); err != nil {
			return err
		}
	}
	return nil
}

func localPlacer(svc *service.OrderService) placeFunc {
	return func(ctx context.Context, customer string) error {
		_, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{
			RequestID:   uuid.NewString(),
			CustomerRef: customer,
			Configuration: domain.PizzaConfiguration{
				Base:   domain.IngredientRef{Type: stressBase.Type, ID: stressBase.ID, Quantity: 1},
				Sauce:  domain.IngredientRef{Type: stressSauce.Type, ID: stressSauce.ID, Quantity: 1},
				Cheese: domain.IngredientRef{Type: stressCheese.Type, ID: stressCheese.ID, Quantity: 1},
			},
			Quantity: 1,
			Pricing:  domain.Pricing{ItemPrice: decimal.NewFromInt(160)},
		})
		return err
	}
}

func grpcPlacer(client pb.OrderServiceClient) placeFunc {
	return func(ctx context.Context, customer string) error {
		_, err := client.PlaceOrder(ctx, &pb.PlaceOrderRequest{
			RequestID:   uuid.NewString(),
			CustomerRef: customer,
			Base:        &pb.IngredientRef{ID: stressBase.ID, Quantity: 1},
			Sauce:       &pb.IngredientRef{ID: stressSauce.ID, Quantity: 1},
			Cheese:      &pb.IngredientRef{ID: stressCheese.ID, Quantity: 1},
			Quantity:    1,
			ItemPrice:   "160",
		})
		if status.Code(err) == codes.ResourceExhausted {
			return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, status.Convert(err).Message())
		}
		return err
	}
}
