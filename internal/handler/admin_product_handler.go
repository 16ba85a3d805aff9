package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/config"
	"storefront/internal/infra/storage"
	"storefront/internal/middleware"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// SuccessResponse は { message: string } の形。
type SuccessResponse struct {
	Message string `json:"message"`
}

type ProductRequest struct {
	Name      string  `json:"name"`
	Quantity  int64   `json:"quantity"`
	Price     int64   `json:"price"` // センタボ
	ImagePath *string `json:"image_path"`
}

// 在庫の相対更新の入力
type StockAdjustRequest struct {
	Quantity  int64  `json:"quantity"`
	Direction string `json:"direction"` // increase / decrease
}

type UploadResponse struct {
	Path string `json:"path"`
}

// /admin/products と /admin/inventory をまとめる
type AdminProductHandler struct {
	uc     *usecase.ProductUsecase
	images *storage.ImageStore
}

// DI
func NewAdminProductHandler(uc *usecase.ProductUsecase, images *storage.ImageStore) *AdminProductHandler {
	return &AdminProductHandler{uc: uc, images: images}
}

// adminを登録
func (h *AdminProductHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	admin := e.Group("/admin")

	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.AdminRoleGuard())

	admin.GET("/inventory", h.listInventory)
	admin.POST("/products", h.createProduct)
	admin.PUT("/products/:id", h.updateProduct)
	admin.DELETE("/products/:id", h.deleteProduct)
	admin.PATCH("/products/:id/stock", h.adjustStock)
	admin.POST("/uploads", h.upload)
}

// 在庫0も含めた全件（管理ビュー）
func (h *AdminProductHandler) listInventory(c echo.Context) error {
	out, err := h.uc.ListInventory(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) createProduct(c echo.Context) error {
	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	created, err := h.uc.CreateProduct(c.Request().Context(), usecase.CreateProductInput{
		Name:      req.Name,
		Quantity:  req.Quantity,
		Price:     req.Price,
		ImagePath: req.ImagePath,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, created)
}

func (h *AdminProductHandler) updateProduct(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	err = h.uc.UpdateProduct(c.Request().Context(), id, usecase.CreateProductInput{
		Name:      req.Name,
		Quantity:  req.Quantity,
		Price:     req.Price,
		ImagePath: req.ImagePath,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "updated"})
}

func (h *AdminProductHandler) deleteProduct(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.uc.DeleteProduct(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *AdminProductHandler) adjustStock(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req StockAdjustRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	err = h.uc.AdjustStock(c.Request().Context(), id, usecase.AdjustStockInput{
		Quantity:  req.Quantity,
		Direction: repo.AdjustDirection(req.Direction),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "stock updated"})
}

// 商品画像アップロード（multipart/form-dataのfileフィールド）
func (h *AdminProductHandler) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file is required"})
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid file"})
	}
	defer src.Close()

	path, err := h.images.Save(fh.Filename, src)
	if err != nil {
		c.Logger().Errorf("save upload: %v", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}

	return c.JSON(http.StatusOK, UploadResponse{Path: path})
}

//middleware.AuthJWT が c.Set("user_id", int64) した値を取り出す

func getUserIDFromContext(c echo.Context) (int64, bool) {
	v := c.Get(middleware.CtxUserIDKey)
	if v == nil {
		return 0, false
	}

	id, ok := v.(int64)
	if !ok {
		return 0, false
	}

	return id, true
}
