package records

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// reuse window for pending payment intents
const intentReuseWindow = 10 * time.Minute

type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err = db.AutoMigrate(&PaymentIntentRecord{}, &Charge{}, &Subscription{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened connection
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) SaveIntent(rec *PaymentIntentRecord) error {
	return s.db.Create(rec).Error
}

// FindReusableIntent returns a pending intent created within the reuse
// window for the same purchaser, lock, chain and connected account, or nil
func (s *Store) FindReusableIntent(userAddress, lockAddress string, chain int, connectedStripeID string) (*PaymentIntentRecord, error) {
	var rec PaymentIntentRecord
	err := s.db.
		Where("user_address = ? AND lock_address = ? AND chain = ? AND connected_stripe_id = ?",
			userAddress, lockAddress, chain, connectedStripeID).
		Where("created_at >= ?", time.Now().Add(-intentReuseWindow)).
		Order("created_at DESC").
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) FindIntentByID(intentID string) (*PaymentIntentRecord, error) {
	var rec PaymentIntentRecord
	if err := s.db.Where("intent_id = ?", intentID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveCharge(c *Charge) error {
	return s.db.Create(c).Error
}

func (s *Store) SetChargeTransactionHash(chargeID, txHash string) error {
	return s.db.Model(&Charge{}).
		Where("charge_id = ?", chargeID).
		Update("transaction_hash", txHash).Error
}

func (s *Store) SaveSubscription(sub *Subscription) error {
	return s.db.Create(sub).Error
}
