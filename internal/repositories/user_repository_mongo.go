package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spendwise/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Devices are embedded in the user document so a device append is a single
// document update.
type userDocument struct {
	ID           string           `bson:"_id"`
	Name         string           `bson:"name"`
	PasswordHash string           `bson:"passwordHash"`
	Role         string           `bson:"role"`
	Devices      []deviceDocument `bson:"devices"`
	CreatedAt    time.Time        `bson:"createdAt"`
	UpdatedAt    time.Time        `bson:"updatedAt"`
}

type deviceDocument struct {
	DeviceID          string     `bson:"deviceId"`
	DeviceName        string     `bson:"deviceName"`
	LastLogin         *time.Time `bson:"lastLogin,omitempty"`
	TwoFactorVerified bool       `bson:"twoFactorVerified"`
	TwoFactorSecret   string     `bson:"twoFactorSecret"`
	CreatedAt         time.Time  `bson:"createdAt"`
}

type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(ctx context.Context, db *mongo.Database) (*MongoUserRepository, error) {
	repo := &MongoUserRepository{coll: db.Collection("users")}
	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func newContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}

func (r *MongoUserRepository) ensureIndexes(ctx context.Context) error {
	ctx, cancel := newContext(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "devices.deviceId", Value: 1}}},
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toModel()
}

func (r *MongoUserRepository) FindByName(ctx context.Context, name string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"name": name})
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *MongoUserRepository) List(ctx context.Context) ([]models.User, error) {
	ctx, cancel := newContext(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}}).SetProjection(bson.M{"devices": 0})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := make([]models.User, 0)
	for cursor.Next(ctx) {
		var doc userDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		user, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, cursor.Err()
}

func (r *MongoUserRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	count, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (r *MongoUserRepository) Create(ctx context.Context, user *models.User) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, newUserDocument(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"passwordHash": passwordHash, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// appendDeviceFilter matches the owner only while none of its devices
// shares the new device's id or non-empty name.
func appendDeviceFilter(userID uuid.UUID, device *models.Device) bson.M {
	filter := bson.M{
		"_id":              userID.String(),
		"devices.deviceId": bson.M{"$ne": device.DeviceID.String()},
	}
	if device.DeviceName != "" {
		filter["devices.deviceName"] = bson.M{"$ne": device.DeviceName}
	}
	return filter
}

func appendDeviceUpdate(device *models.Device, now time.Time) bson.M {
	return bson.M{
		"$push": bson.M{"devices": newDeviceDocument(device)},
		"$set":  bson.M{"updatedAt": now},
	}
}

func (r *MongoUserRepository) AppendDevice(ctx context.Context, userID uuid.UUID, device *models.Device) (*models.Device, bool, error) {
	now := time.Now().UTC()
	if device.DeviceID == uuid.Nil {
		device.DeviceID = uuid.New()
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UserID = userID

	opCtx, cancel := newContext(ctx, 5*time.Second)
	res, err := r.coll.UpdateOne(opCtx, appendDeviceFilter(userID, device), appendDeviceUpdate(device, now))
	cancel()
	if err != nil {
		return nil, false, fmt.Errorf("append device: %w", err)
	}
	if res.MatchedCount == 1 {
		return device, true, nil
	}

	owner, err := r.FindByID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if existing := owner.FindDevice(device.DeviceID.String()); existing != nil {
		return existing, false, nil
	}
	if existing := owner.FindDeviceByName(device.DeviceName); existing != nil {
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("append device: update matched no document for user %s", userID)
}

func recordLoginUpdate(at time.Time, verified bool) bson.M {
	set := bson.M{"devices.$.lastLogin": at, "updatedAt": at}
	if verified {
		set["devices.$.twoFactorVerified"] = true
	}
	return bson.M{"$set": set}
}

func (r *MongoUserRepository) RecordDeviceLogin(ctx context.Context, userID, deviceID uuid.UUID, at time.Time, verified bool) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID.String(), "devices.deviceId": deviceID.String()},
		recordLoginUpdate(at, verified),
	)
	if err != nil {
		return fmt.Errorf("record device login: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepository) ListDevices(ctx context.Context, userID uuid.UUID) ([]models.Device, error) {
	user, err := r.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Devices, nil
}

func newUserDocument(u *models.User) userDocument {
	doc := userDocument{
		ID:           u.ID.String(),
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Devices:      make([]deviceDocument, 0, len(u.Devices)),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	for i := range u.Devices {
		doc.Devices = append(doc.Devices, newDeviceDocument(&u.Devices[i]))
	}
	return doc
}

func newDeviceDocument(d *models.Device) deviceDocument {
	return deviceDocument{
		DeviceID:          d.DeviceID.String(),
		DeviceName:        d.DeviceName,
		LastLogin:         d.LastLogin,
		TwoFactorVerified: d.TwoFactorVerified,
		TwoFactorSecret:   d.TwoFactorSecret,
		CreatedAt:         d.CreatedAt,
	}
}

func (d userDocument) toModel() (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode user id %q: %w", d.ID, err)
	}
	user := &models.User{
		BaseModel:    models.BaseModel{ID: id, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt},
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		Role:         models.UserRole(d.Role),
		Devices:      make([]models.Device, 0, len(d.Devices)),
	}
	for _, dd := range d.Devices {
		deviceID, err := uuid.Parse(dd.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("decode device id %q: %w", dd.DeviceID, err)
		}
		user.Devices = append(user.Devices, models.Device{
			DeviceID:          deviceID,
			UserID:            id,
			DeviceName:        dd.DeviceName,
			LastLogin:         dd.LastLogin,
			TwoFactorVerified: dd.TwoFactorVerified,
			TwoFactorSecret:   dd.TwoFactorSecret,
			CreatedAt:         dd.CreatedAt,
		})
	}
	return user, nil
}
